package coordinator

import (
	"time"

	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
)

type Status int

const (
	StatusUnpolled Status = iota
	StatusFresh
	StatusStale
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUnpolled:
		return "unpolled"
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PollState is the published outcome of the last refresh. Values are never
// mutated once published.
type PollState struct {
	Status Status
	// last good snapshot, set for Fresh and Stale
	Snapshot ecodevices.Snapshot
	// last refresh error, set for Stale and Failed
	Err       error
	UpdatedAt time.Time
}

func (s PollState) HasSnapshot() bool {
	return s.Status == StatusFresh || s.Status == StatusStale
}

func (s PollState) IsAuthFailure() bool {
	return s.Err != nil && ecodevices.IsAuthError(s.Err)
}

// next computes the state following a refresh attempt.
func (s PollState) next(snapshot ecodevices.Snapshot, err error, now time.Time) PollState {
	if err == nil {
		return PollState{
			Status:    StatusFresh,
			Snapshot:  snapshot,
			UpdatedAt: now,
		}
	}
	if s.HasSnapshot() {
		return PollState{
			Status:    StatusStale,
			Snapshot:  s.Snapshot,
			Err:       err,
			UpdatedAt: now,
		}
	}
	return PollState{
		Status:    StatusFailed,
		Err:       err,
		UpdatedAt: now,
	}
}
