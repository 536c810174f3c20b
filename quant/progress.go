package quant

import (
	"math"

	log "github.com/sirupsen/logrus"
)

// LogReporter logs EM progress every maxIter/100 iterations and whenever the
// delta drops to a smaller order of magnitude.
type LogReporter struct {
	every     int
	magnitude int
	log       func(format string, args ...interface{})
}

// NewLogReporter returns a reporter for a run of at most maxIter iterations.
func NewLogReporter(maxIter int) *LogReporter {
	every := maxIter / 100
	if every < 1 {
		every = 1
	}
	return &LogReporter{every: every, magnitude: math.MaxInt32, log: log.Debugf}
}

// Report implements emabund.Reporter.
func (l *LogReporter) Report(iter int, delta float64) {
	m := math.MaxInt32
	if delta > 0 {
		m = int(math.Floor(math.Log10(delta)))
	}
	if iter%l.every != 0 && m >= l.magnitude {
		return
	}
	if m < l.magnitude {
		l.magnitude = m
	}
	l.log("EM iteration %d: delta %.3g", iter, delta)
}
