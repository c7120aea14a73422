package sorter

import (
	"time"
)

const (
	StatusMoved       = "moved"
	StatusPlanned     = "planned"
	StatusQuarantined = "quarantined"
	StatusSkipped     = "skipped"
)

// Report summarizes one batch. It is printed as JSON with -json.
type Report struct {
	Inbox  string `json:"inbox"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary Summary `json:"summary"`
	Items   []Item  `json:"items"`
}

type Summary struct {
	Moved       int `json:"moved"`
	Planned     int `json:"planned"`
	Quarantined int `json:"quarantined"`
	Skipped     int `json:"skipped"`
	// Remaining counts inbox files left for a later batch.
	Remaining int `json:"remaining"`
}

// Item is the result for one inbox file.
type Item struct {
	Source      string `json:"source"`
	Target      string `json:"target,omitempty"`
	Category    string `json:"category"`
	Orientation string `json:"orientation,omitempty"`
	Date        string `json:"date,omitempty"`
	DateSource  string `json:"date_source,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	Quarantine  string `json:"quarantine,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// Failed reports whether the item needs the operator's attention.
func (it Item) Failed() bool {
	return it.Status == StatusQuarantined || it.Status == StatusSkipped || it.Error != ""
}

// Finalize normalizes times to UTC and recomputes the summary from the items.
func (r *Report) Finalize(remaining int) {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Items == nil {
		r.Items = []Item{}
	}

	s := Summary{Remaining: remaining}
	for _, it := range r.Items {
		switch it.Status {
		case StatusMoved:
			s.Moved++
		case StatusPlanned:
			s.Planned++
		case StatusQuarantined:
			s.Quarantined++
		case StatusSkipped:
			s.Skipped++
		}
	}
	r.Summary = s
}
