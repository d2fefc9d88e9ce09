package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusNotStarted SessionStatus = "NOT_STARTED"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusPaused     SessionStatus = "PAUSED"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"

	// SessionStatusCompleted is a deprecated alias of SUBMITTED kept for
	// clients that still read the old terminal name. Never written.
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// IsTerminal reports whether no further transition is defined from s.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusSubmitted || s == SessionStatusCompleted
}

// SubmitReason records what triggered the terminal transition.
type SubmitReason string

const (
	SubmitReasonManual      SubmitReason = "manual"
	SubmitReasonTimeExpired SubmitReason = "time_expired"
	SubmitReasonViolation   SubmitReason = "violation_policy"
)

// ExamSession represents a student's proctored exam attempt.
// CurrentQuestion is a 1-based pointer into QuestionIDs; Answers maps a
// question ID to the selected option letter.
type ExamSession struct {
	ID              uuid.UUID         `json:"id"`
	HallTicketID    uuid.UUID         `json:"hall_ticket_id"`
	StudentID       int               `json:"student_id"`
	Status          SessionStatus     `json:"status"`
	CurrentQuestion int               `json:"current_question"`
	QuestionIDs     []uuid.UUID       `json:"question_ids"`
	Answers         map[string]string `json:"answers"`
	TimeRemaining   int               `json:"time_remaining"` // seconds
	ViolationCount  int               `json:"violation_count"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand out after the runtime lock is released.
func (s *ExamSession) Clone() *ExamSession {
	cp := *s
	cp.QuestionIDs = append([]uuid.UUID(nil), s.QuestionIDs...)
	cp.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		cp.Answers[k] = v
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// StartSessionRequest is the payload for starting an exam session.
type StartSessionRequest struct {
	HallTicketID string `json:"hall_ticket_id" binding:"required,uuid"`
}

// AnswerRequest is the payload for saving a single answer.
type AnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Answer     string `json:"answer" binding:"required,min=1,max=10"`
}

// NavigateRequest is the payload for moving the question pointer.
type NavigateRequest struct {
	Question int `json:"question" binding:"required,min=1"`
}
