package telemetry

import "github.com/sirupsen/logrus"

// Logger logs every metric update at Trace level.
type Logger struct {
	entry *logrus.Entry
}

var _ Collector = (*Logger)(nil)

// NewLogger returns a collector logging through entry, or the standard
// logger when entry is nil.
func NewLogger(entry *logrus.Entry) *Logger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Logger{entry: entry}
}

// IncCounter logs a counter increment.
func (l *Logger) IncCounter(name string, delta int64) {
	l.entry.WithFields(logrus.Fields{"metric": name, "delta": delta}).Trace("counter")
}

// SetGauge logs a gauge value.
func (l *Logger) SetGauge(name string, value float64) {
	l.entry.WithFields(logrus.Fields{"metric": name, "value": value}).Trace("gauge")
}

// ObserveHistogram logs a histogram observation.
func (l *Logger) ObserveHistogram(name string, value float64) {
	l.entry.WithFields(logrus.Fields{"metric": name, "value": value}).Trace("histogram")
}
