package pipeline

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/mboyd/paperflow/internal/dispatch"
	"github.com/mboyd/paperflow/internal/manifest"
)

// PaperReport is the terminal status of one paper in a run.
type PaperReport struct {
	ID             string `json:"id"`
	Title          string `json:"title,omitempty"`
	DownloadStatus string `json:"download_status"`
	Attempts       int    `json:"attempts"`
	Dispatched     bool   `json:"dispatched"`
	DispatchStatus string `json:"dispatch_status,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RunReport aggregates one pipeline cycle. Every paper the run touched is
// listed with its terminal status, even when a sub-stage failed wholesale.
type RunReport struct {
	RunID          string        `json:"run_id"`
	Date           string        `json:"date"`
	Total          int           `json:"total"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	DispatchOK     int           `json:"dispatch_ok"`
	DispatchFailed int           `json:"dispatch_failed"`
	Papers         []PaperReport `json:"papers"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
	Error          string        `json:"error,omitempty"`
}

// JSON renders the report for the stdout contract and the state file.
func (r *RunReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// fill populates counts and per-paper statuses from the manifest and this
// run's dispatch outcomes.
func (r *RunReport) fill(m *manifest.Manifest, outcomes map[string]dispatch.Result) {
	r.Total = len(m.Tasks)
	r.Succeeded, r.Failed = m.Counts()

	ids := make([]string, 0, len(m.Tasks))
	for id := range m.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r.Papers = r.Papers[:0]
	for _, id := range ids {
		t := m.Tasks[id]
		pr := PaperReport{
			ID:             id,
			Title:          t.Title,
			DownloadStatus: string(t.Status),
			Attempts:       t.Attempts,
			Dispatched:     t.Dispatched,
			Error:          t.Error,
		}
		if res, ok := outcomes[id]; ok {
			pr.DispatchStatus = res.Status
			if res.Status == dispatch.StatusError && pr.Error == "" {
				pr.Error = res.ErrorDetail
			}
		} else if t.Dispatched {
			// Delivered in a prior run of the same date.
			pr.DispatchStatus = dispatch.StatusOK
		}
		switch pr.DispatchStatus {
		case dispatch.StatusOK:
			r.DispatchOK++
		case dispatch.StatusError:
			r.DispatchFailed++
		}
		r.Papers = append(r.Papers, pr)
	}
}
