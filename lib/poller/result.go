package poller

// PollResult aggregates one poll cycle. Per-item failures degrade into
// Errors; a run never raises.
type PollResult struct {
	SubjectsPolled int      `json:"subjects_polled"`
	ClassesUpdated int      `json:"classes_updated"`
	AlertsSent     int      `json:"alerts_sent"`
	Errors         []string `json:"errors"`
}

func newPollResult() *PollResult {
	return &PollResult{Errors: make([]string, 0)}
}
