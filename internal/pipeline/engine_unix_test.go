// SPDX-License-Identifier: MIT
//go:build unix

package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"accelfft/internal/config"
)

// Producer and consumer engines share only a mapped file, as two processes
// would.
func TestEnginesShareMappedRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accelfft.shm")

	ccfg := testConfig(config.ModeSoftware)
	ccfg.Role = config.RoleConsumer
	ccfg.SHM.Path = path
	out := &mockTransport{}
	consumer, err := NewEngine(ccfg, out)
	if err != nil {
		t.Fatalf("consumer NewEngine: %v", err)
	}
	defer consumer.Close()

	pcfg := testConfig(config.ModeHardware)
	pcfg.Role = config.RoleProducer
	pcfg.SHM.Path = path
	producer, err := NewEngine(pcfg)
	if err != nil {
		t.Fatalf("producer NewEngine: %v", err)
	}
	defer producer.Close()
	if producer.Consumer() != nil || consumer.Producer() != nil {
		t.Fatal("single-role engines should build one side only")
	}

	cctx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	cdone := make(chan error, 1)
	go func() { cdone <- consumer.Run(cctx) }()

	// Let the consumer clear the flag before the first block.
	time.Sleep(10 * time.Millisecond)

	pctx, stopProducer := context.WithCancel(context.Background())
	pdone := make(chan error, 1)
	go func() { pdone <- producer.Run(pctx) }()

	reports := waitReports(t, out, 3)
	stopProducer()
	if err := <-pdone; err != nil {
		t.Errorf("producer Run: %v", err)
	}
	stopConsumer()
	if err := <-cdone; err != nil {
		t.Errorf("consumer Run: %v", err)
	}
	for _, r := range reports {
		if r.Bin != testToneHz {
			t.Errorf("frame %d: peak at bin %d, want %d", r.Frame, r.Bin, testToneHz)
		}
	}
}
