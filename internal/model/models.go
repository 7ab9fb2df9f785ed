package model

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// EmailType is the closed classification taxonomy. Anything the model returns
// outside this set is coerced to EmailTypeOther.
type EmailType string

const (
	EmailTypeRegistrationForm EmailType = "registration_form"
	EmailTypeConfirmation     EmailType = "confirmation"
	EmailTypeCancellation     EmailType = "cancellation"
	EmailTypeWaitlist         EmailType = "waitlist"
	EmailTypeOther            EmailType = "other"
)

// IsValid reports whether the email type is a member of the taxonomy.
func (t EmailType) IsValid() bool {
	switch t {
	case EmailTypeRegistrationForm, EmailTypeConfirmation, EmailTypeCancellation, EmailTypeWaitlist, EmailTypeOther:
		return true
	}
	return false
}

// Action is the terminal outcome of processing one email.
type Action string

const (
	ActionCreated           Action = "created"
	ActionUpdated           Action = "updated"
	ActionUnchanged         Action = "unchanged"
	ActionCancelled         Action = "cancelled"
	ActionSkippedLowConf    Action = "skipped_low_confidence"
	ActionSkippedIrrelevant Action = "skipped_irrelevant"
	ActionFailed            Action = "failed"
)

// EmailMessage represents a fetched email message. Immutable once fetched.
type EmailMessage struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	Body       string    `json:"body"`
	HTMLBody   string    `json:"html_body"`
	Snippet    string    `json:"snippet"`
	ReceivedAt time.Time `json:"received_at"`
	Labels     []string  `json:"labels"`
}

// Classification is the typed result of classifying one email.
type Classification struct {
	Type       EmailType `json:"type"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty"`
}

// ClassSession is the structured class data extracted from an email.
// ClassName and StartTime form the identity key; everything else is optional
// and left at its zero value when the email does not mention it.
type ClassSession struct {
	ClassName       string    `json:"class_name"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time,omitempty"`
	Instructor      string    `json:"instructor,omitempty"`
	Location        string    `json:"location,omitempty"`
	ClassType       string    `json:"class_type,omitempty"`
	Difficulty      string    `json:"difficulty,omitempty"`
	Equipment       []string  `json:"equipment,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	SourceMessageID string    `json:"source_message_id"`
}

// Key returns the identity key used to deduplicate calendar events across
// multiple emails describing the same session.
func (s ClassSession) Key() string {
	return fmt.Sprintf("%s|%s", strings.ToLower(strings.TrimSpace(s.ClassName)), s.StartTime.Format(time.RFC3339))
}

// ProcessingResult is the per-message outcome of one pipeline run.
type ProcessingResult struct {
	MessageID      string         `json:"message_id"`
	Classification Classification `json:"classification"`
	Session        *ClassSession  `json:"session,omitempty"`
	Action         Action         `json:"action_taken"`
	Err            error          `json:"-"`
}

// ErrorMessage returns the failure reason, or "" for successful outcomes.
func (r ProcessingResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// MessageFailure is one per-message failure surfaced in a cycle summary.
type MessageFailure struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

// CycleSummary is the returned result of one processing cycle. It replaces
// any ambient process-wide status: callers wanting history accumulate
// summaries themselves.
type CycleSummary struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Fetched    int              `json:"fetched"`
	Counts     map[Action]int   `json:"counts"`
	Failures   []MessageFailure `json:"failures,omitempty"`
}

// NewCycleSummary returns a summary with all outcome counters present.
func NewCycleSummary() *CycleSummary {
	return &CycleSummary{
		StartedAt: time.Now(),
		Counts: map[Action]int{
			ActionCreated:           0,
			ActionUpdated:           0,
			ActionUnchanged:         0,
			ActionCancelled:         0,
			ActionSkippedLowConf:    0,
			ActionSkippedIrrelevant: 0,
			ActionFailed:            0,
		},
	}
}

// Add records one result in the summary.
func (s *CycleSummary) Add(res ProcessingResult) {
	s.Counts[res.Action]++
	if res.Err != nil {
		s.Failures = append(s.Failures, MessageFailure{MessageID: res.MessageID, Reason: res.Err.Error()})
	}
}

// ProcessedEmail is the append-only idempotency ledger entry. A row for a
// message id means the message was durably actioned and must never be
// reprocessed.
type ProcessedEmail struct {
	ID          uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID   string         `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	ActionTaken string         `json:"action_taken" gorm:"type:varchar(50);not null"`
	ProcessedAt time.Time      `json:"processed_at"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for ProcessedEmail
func (ProcessedEmail) TableName() string {
	return "processed_emails"
}

// ProcessingLog records every processing attempt, terminal or not, for
// operator review via the admin API.
type ProcessingLog struct {
	ID         uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID  string         `json:"message_id" gorm:"type:varchar(255);not null;index"`
	EmailType  string         `json:"email_type" gorm:"type:varchar(50)"`
	Confidence float64        `json:"confidence"`
	Action     string         `json:"action" gorm:"type:varchar(50);not null"`
	ErrorMsg   string         `json:"error_msg" gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for ProcessingLog
func (ProcessingLog) TableName() string {
	return "processing_logs"
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Scheduler string    `json:"scheduler"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
