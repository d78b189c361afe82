// SPDX-License-Identifier: MIT
package transport

import (
	"accelfft/internal/analysis"
	applog "accelfft/internal/log"
)

// LoggingTransport implements the Transport interface by logging every
// report, one line per frame.
type LoggingTransport struct {
	log *applog.Logger
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	l := applog.New("report")
	l.Debugf("using logging transport")
	return &LoggingTransport{log: l}
}

// Send logs the received data. Logging never fails to "send".
func (lt *LoggingTransport) Send(data any) error {
	switch v := data.(type) {
	case analysis.Report:
		lt.logReport(v)
	case *analysis.Report:
		lt.logReport(*v)
	default:
		lt.log.Infof("%T: %+v", data, data)
	}
	return nil
}

func (lt *LoggingTransport) logReport(r analysis.Report) {
	lt.log.Infof("frame %d: Peak Frequency Bin: %d (%.2f Hz), Peak Power: %.2f", r.Frame, r.Bin, r.FrequencyHz, r.Power)
	if r.Shock {
		lt.log.Warnf("frame %d: shock, spectral energy %.3g", r.Frame, r.Energy)
	}
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
