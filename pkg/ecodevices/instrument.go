package ecodevices

import (
	"time"

	"go.uber.org/zap"
)

type Instrument struct {
	RecordTime func(cmd Command, readTime time.Duration, err error)
}

func recordTimer(cmd Command, instrument []Instrument) func(err error) {
	if len(instrument) == 0 {
		return func(error) {}
	}

	start := time.Now()
	return func(err error) {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(cmd, duration, err)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) *Instrument {
	if logger == nil || !logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return &Instrument{
		RecordTime: func(cmd Command, readTime time.Duration, err error) {
			logger.Debug("ecodevices request", zap.Stringer("cmd", cmd), zap.Duration("time", readTime), zap.Error(err))
		},
	}
}
