package review

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/myrjola/fitcoach/internal/advisor"
)

var (
	ErrNotFound = errors.New("review not found")
	// ErrInvalidState is returned for a bad modification index, for re-actioning a modification, and for
	// modifications that reference an unparsable date.
	ErrInvalidState = errors.New("invalid review state")
)

// Status is the aggregate approval status of a review.
type Status string

const (
	StatusPending         Status = "pending"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusNoChangesNeeded Status = "no_changes_needed"
	StatusError           Status = "error"
)

// ItemStatus is the status of one proposed modification.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemApproved ItemStatus = "approved"
	ItemRejected ItemStatus = "rejected"
)

// Action is what the athlete does with a proposed modification.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// EvaluationType tags how a review was triggered.
type EvaluationType string

const (
	EvaluationNightly  EvaluationType = "nightly"
	EvaluationOnDemand EvaluationType = "on_demand"
)

// ProposedModification is an advisor modification together with its approval state.
type ProposedModification struct {
	advisor.Modification
	Status      ItemStatus `json:"status"`
	ActionedAt  *time.Time `json:"actioned_at,omitempty"`
	AutoApplied bool       `json:"auto_applied,omitempty"`
}

// Assessment is the serialized evaluation summary of a review.
type Assessment struct {
	Overall       advisor.Assessment `json:"overall_assessment"`
	Confidence    float64            `json:"confidence"`
	NextWeekFocus string             `json:"next_week_focus,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// DailyReview is the single evaluation record of an athlete for a day.
type DailyReview struct {
	ID             int            `json:"id"`
	AthleteID      int            `json:"athlete_id"`
	Date           time.Time      `json:"date"`
	EvaluationType EvaluationType `json:"evaluation_type"`
	Assessment     Assessment     `json:"assessment"`
	// Insights and Recommendations are markdown.
	Insights        string                 `json:"insights"`
	Recommendations string                 `json:"recommendations"`
	Modifications   []ProposedModification `json:"proposed_modifications"`
	Status          Status                 `json:"approval_status"`
	UserContext     string                 `json:"user_context,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// PlanAdjustment is the append-only audit record of an applied modification. ReviewID is nil once the review has
// been swept.
type PlanAdjustment struct {
	ID        int                      `json:"id"`
	AthleteID int                      `json:"athlete_id"`
	ReviewID  *int                     `json:"review_id"`
	Date      time.Time                `json:"adjustment_date"`
	Type      advisor.ModificationType `json:"adjustment_type"`
	Reasoning string                   `json:"reasoning"`
	Change    json.RawMessage          `json:"change_snapshot"`
	CreatedAt time.Time                `json:"created_at"`
}

// SyncResult reports the calendar sync following a local change. A failed sync does not undo the change.
type SyncResult struct {
	Attempted bool   `json:"attempted"`
	EventID   string `json:"event_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ActionResult is the outcome of approving or rejecting a modification.
type ActionResult struct {
	Review     DailyReview     `json:"review"`
	Adjustment *PlanAdjustment `json:"adjustment,omitempty"`
	Sync       *SyncResult     `json:"sync,omitempty"`
}

// EvaluationResult is the outcome of an evaluation. Upstream failures end up in Errors and in an error-status
// review rather than in the returned error.
type EvaluationResult struct {
	Review            DailyReview `json:"review"`
	ModificationCount int         `json:"modification_count"`
	AutoApplied       int         `json:"auto_applied"`
	Errors            []string    `json:"errors,omitempty"`
}

// AggregateStatus derives the review status from the item statuses.
func AggregateStatus(items []ProposedModification) Status {
	if len(items) == 0 {
		return StatusNoChangesNeeded
	}
	approved := false
	for _, item := range items {
		switch item.Status {
		case ItemApproved:
			approved = true
		case ItemRejected:
		default:
			return StatusPending
		}
	}
	if approved {
		return StatusApproved
	}
	return StatusRejected
}
