package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	SourcePVP        = "pvp"
	SourceFallcoaste = "fallcoaste"
)

type TerminationReason string

const (
	ReasonCompleted     TerminationReason = "completed"
	ReasonPageBudget    TerminationReason = "page_budget_exhausted"
	ReasonFailureBudget TerminationReason = "failure_budget_exhausted"
	ReasonBanned        TerminationReason = "banned"
	ReasonCanceled      TerminationReason = "canceled"
	ReasonCooldown      TerminationReason = "skipped_cooldown"
	ReasonNoPrimary     TerminationReason = "skipped_no_primary"
)

// RunReport summarises one ingestor run.
type RunReport struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Pages       int               `json:"pages"`
	Fetched     int               `json:"fetched"`
	Matched     int               `json:"matched"`
	Published   int               `json:"published"`
	Failed      int               `json:"failed"`
	Reason      TerminationReason `json:"reason"`
	Error       string            `json:"error,omitempty"`
}

func NewRunReport(source string, now time.Time) RunReport {
	return RunReport{ID: uuid.NewString(), Source: source, StartedAt: now.UTC()}
}

// Finish stamps the completion time and reason, keeping the first error message.
func (r *RunReport) Finish(reason TerminationReason, err error, now time.Time) {
	r.Reason = reason
	r.CompletedAt = now.UTC()
	if err != nil && r.Error == "" {
		r.Error = err.Error()
	}
}
