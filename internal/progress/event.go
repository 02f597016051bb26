// Package progress defines the event stream emitted by the pipeline and
// the hub that fans it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageListingDone  Stage = "LISTING_DONE"
	StageDownloadDone Stage = "DOWNLOAD_DONE"
	StageDispatchDone Stage = "DISPATCH_DONE"
	StageRunDone      Stage = "RUN_DONE"
	StageRunError     Stage = "RUN_ERROR"
)

// Event captures a single pipeline milestone.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Date is the run date (YYYY-MM-DD).
	Date string
	// PaperID scopes download and dispatch events to one paper.
	PaperID string
	// Status is the per-paper outcome (succeeded/failed for downloads,
	// ok/error for dispatches).
	Status string
	// Papers carries the listing size for LISTING_DONE.
	Papers int64
	// Dur captures latency for per-paper and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Date == "" {
		return errors.New("run date is required")
	}
	switch e.Stage {
	case StageRunStart, StageListingDone, StageRunDone, StageRunError:
	case StageDownloadDone, StageDispatchDone:
		if e.PaperID == "" {
			return fmt.Errorf("%s requires paper id", e.Stage)
		}
		if e.Status == "" {
			return fmt.Errorf("%s requires status", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
