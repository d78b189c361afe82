// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"accelfft/internal/analysis"
	applog "accelfft/internal/log"
	"accelfft/internal/transport"
)

// ReportPublisher keeps the latest consumer report and sends it as a binary
// datagram on every tick of its interval. Ticks with no new report send
// nothing. It implements transport.Transport.
type ReportPublisher struct {
	sender   *UDPSender
	interval time.Duration
	log      *applog.Logger

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker, doneChan, latest and fresh.

	latest analysis.Report
	fresh  bool

	sequenceNum  uint32
	peaks        []float32
	packetBuffer *bytes.Buffer
}

// NewReportPublisher returns a stopped publisher. An interval <= 0 defaults
// to 100ms.
func NewReportPublisher(interval time.Duration, sender *UDPSender) (*ReportPublisher, error) {
	if sender == nil {
		return nil, errors.New("udp: sender cannot be nil")
	}
	l := applog.New("udp")
	if interval <= 0 {
		interval = 100 * time.Millisecond
		l.Warnf("invalid publish interval, defaulting to %s", interval)
	}
	return &ReportPublisher{
		sender:       sender,
		interval:     interval,
		log:          l,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send implements transport.Transport. It records data if it is a report
// and ignores anything else.
func (p *ReportPublisher) Send(data any) error {
	var r analysis.Report
	switch v := data.(type) {
	case analysis.Report:
		r = v
	case *analysis.Report:
		r = *v
	default:
		return nil
	}
	p.mu.Lock()
	p.latest, p.fresh = r, true
	p.mu.Unlock()
	return nil
}

// Start begins the periodic publishing. Calling it twice is a no-op.
func (p *ReportPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		p.log.Warnf("publisher already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, doneChan := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to exit and waits for it.
func (p *ReportPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Close stops the publisher and closes its sender.
func (p *ReportPublisher) Close() error {
	return errors.Join(p.Stop(), p.sender.Close())
}

func (p *ReportPublisher) publish() {
	p.mu.Lock()
	if !p.fresh {
		p.mu.Unlock()
		return
	}
	r := p.latest
	p.fresh = false
	p.mu.Unlock()

	p.sequenceNum++
	pkt, err := p.encode(p.sequenceNum, time.Now().UnixNano(), r)
	if err != nil {
		p.log.Errorf("error packing report %d: %v", r.Frame, err)
		return
	}
	if err := p.sender.Send(pkt); err == nil {
		p.log.Debugf("sent packet %d for frame %d (%d bytes)", p.sequenceNum, r.Frame, len(pkt))
	}
}

/*
Report packet (BigEndian):

	| Field           | Type      | Size  |
	|-----------------|-----------|-------|
	| Sequence Number | uint32    | 4     |
	| Timestamp       | int64     | 8     | ns since epoch
	| Frame           | uint64    | 8     |
	| Peak Bin        | uint32    | 4     |
	| Peak Power      | float32   | 4     |
	| Peak Frequency  | float32   | 4     | Hz
	| Flags           | uint8     | 1     | bit 0: shock
	| Peak Count      | uint16    | 2     | K
	| Peaks           | []float32 | K * 8 | bin, power pairs
*/

// headerSize is the fixed part of a report packet.
const headerSize = 4 + 8 + 8 + 4 + 4 + 4 + 1 + 2

func (p *ReportPublisher) encode(seq uint32, ts int64, r analysis.Report) ([]byte, error) {
	var flags uint8
	if r.Shock {
		flags |= 1
	}
	p.peaks = p.peaks[:0]
	for _, pk := range r.Peaks {
		p.peaks = append(p.peaks, float32(pk.Bin), pk.Power)
	}

	p.packetBuffer.Reset()
	fields := []any{
		seq, ts, r.Frame, uint32(r.Bin), r.Power, float32(r.FrequencyHz), flags,
		uint16(len(r.Peaks)), p.peaks,
	}
	for _, f := range fields {
		if err := binary.Write(p.packetBuffer, binary.BigEndian, f); err != nil {
			return nil, err
		}
	}
	return p.packetBuffer.Bytes(), nil
}

// Packet is a decoded report datagram.
type Packet struct {
	Sequence    uint32
	Timestamp   int64
	Frame       uint64
	Bin         uint32
	Power       float32
	FrequencyHz float32
	Shock       bool
	Peaks       []analysis.Peak
}

// DecodePacket parses a datagram sent by ReportPublisher.
func DecodePacket(b []byte) (Packet, error) {
	var pkt Packet
	if len(b) < headerSize {
		return pkt, fmt.Errorf("udp: packet of %d bytes is shorter than the %d byte header", len(b), headerSize)
	}
	r := bytes.NewReader(b)
	var flags uint8
	var count uint16
	for _, f := range []any{&pkt.Sequence, &pkt.Timestamp, &pkt.Frame, &pkt.Bin, &pkt.Power, &pkt.FrequencyHz, &flags, &count} {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return pkt, err
		}
	}
	pkt.Shock = flags&1 != 0

	pairs := make([]float32, 2*int(count))
	if err := binary.Read(r, binary.BigEndian, pairs); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return pkt, fmt.Errorf("udp: truncated peak list: %w", err)
		}
		return pkt, err
	}
	for i := 0; i < len(pairs); i += 2 {
		pkt.Peaks = append(pkt.Peaks, analysis.Peak{Bin: int(pairs[i]), Power: pairs[i+1]})
	}
	return pkt, nil
}

var _ transport.Transport = (*ReportPublisher)(nil)
