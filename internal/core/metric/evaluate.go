package metric

import (
	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
	"go.uber.org/zap"
)

type Reading struct {
	Spec  Spec
	Value Value
	Err   error
}

// Evaluate derives every metric of the catalog from the snapshot. Each metric
// is isolated: a failing derivation yields an unavailable reading and leaves
// the others untouched.
func Evaluate(catalog *Catalog, snapshot ecodevices.Snapshot, logger *zap.Logger) []Reading {
	if catalog == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	readings := make([]Reading, 0, len(catalog.specs))
	for _, spec := range catalog.specs {
		value, err := Derive(spec, snapshot)
		switch {
		case err != nil && IsMissingData(err):
			logger.Warn("data not received", zap.String("metric", spec.Id), zap.Error(err))
		case err != nil:
			logger.Warn("cannot derive metric", zap.String("metric", spec.Id), zap.Error(err))
		case value.Guarded:
			logger.Warn("total value not greater than 0, ignore",
				zap.String("metric", spec.Id), zap.Strings("fields", spec.Fields))
		}
		readings = append(readings, Reading{
			Spec:  spec,
			Value: value,
			Err:   err,
		})
	}
	return readings
}
