package scheduler

import "time"

// RunResult reports what one automation run accomplished. Counters cover the
// work done; Errors carries per-step failures without failing the run.
type RunResult struct {
	InvoicesGenerated     int       `json:"invoices_generated"`
	InvoicesFailed        int       `json:"invoices_failed"`
	InvoicesMarkedOverdue int       `json:"invoices_marked_overdue"`
	DueSoonReminders      int       `json:"due_soon_reminders"`
	SnapshotsRolled       int       `json:"snapshots_rolled"`
	NotificationsSent     int       `json:"notifications_sent"`
	Errors                []string  `json:"errors,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}

func (r *RunResult) addError(step string, err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, step+": "+err.Error())
}
