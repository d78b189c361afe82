// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"accelfft/internal/analysis"
	applog "accelfft/internal/log"
	"accelfft/pkg/utils"
)

type closeCounter struct {
	utils.MockTransport
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestMultiFansOut(t *testing.T) {
	a, b := &closeCounter{}, &closeCounter{}
	b.Err = errors.New("link down")
	m := Multi{a, b}

	err := m.Send("frame")
	if err == nil || !strings.Contains(err.Error(), "link down") {
		t.Fatalf("Send error = %v, want the failing transport's error", err)
	}
	if len(a.Sent()) != 1 || len(b.Sent()) != 1 {
		t.Errorf("sent %d and %d messages, want 1 each", len(a.Sent()), len(b.Sent()))
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if a.closes != 1 || b.closes != 1 {
		t.Errorf("closed %d and %d times, want 1 each", a.closes, b.closes)
	}
}

func TestLoggingTransportLogsPeakLine(t *testing.T) {
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	defer applog.SetOutput(os.Stderr)

	lt := NewLoggingTransport()
	if err := lt.Send(analysis.Report{Frame: 4, Bin: 10, Power: 4096, FrequencyHz: 10}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Peak Frequency Bin: 10") || !strings.Contains(out, "Peak Power: 4096.00") {
		t.Errorf("unexpected log output: %q", out)
	}
}

func TestWebSocketTransportBroadcastsReports(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebSocketTransport: %v", err)
	}
	defer wst.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for wst.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	want := analysis.Report{Type: analysis.ReportType, Frame: 9, Bin: 10, Power: 2.5, FrequencyHz: 10}
	if err := wst.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got analysis.Report
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Frame != want.Frame || got.Bin != want.Bin || got.Power != want.Power || got.Type != want.Type {
		t.Errorf("received %+v, want %+v", got, want)
	}
}

func TestWebSocketTransportSendAfterClose(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebSocketTransport: %v", err)
	}
	if err := wst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := wst.Send("late"); err == nil {
		t.Error("Send after Close should fail")
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
