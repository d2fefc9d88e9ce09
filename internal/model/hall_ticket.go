package model

import (
	"time"

	"github.com/google/uuid"
)

// HallTicketStatus enumerates hall ticket lifecycle states.
type HallTicketStatus string

const (
	HallTicketStatusActive  HallTicketStatus = "ACTIVE"
	HallTicketStatusUsed    HallTicketStatus = "USED"
	HallTicketStatusExpired HallTicketStatus = "EXPIRED"
	HallTicketStatusRevoked HallTicketStatus = "REVOKED"
)

// HallTicket is the authorization record binding a student to an exam
// sitting. Produced by an external admin workflow (QR generation included);
// consumed here by login and session creation.
type HallTicket struct {
	ID              uuid.UUID        `json:"id"`
	TicketToken     string           `json:"-"` // value encoded in the QR code, never exposed
	StudentID       int              `json:"student_id"`
	ExamTitle       string           `json:"exam_title"`
	QBankID         uuid.UUID        `json:"qbank_id"`
	QuestionCount   int              `json:"question_count"`
	DurationMinutes int              `json:"duration_minutes"`
	Status          HallTicketStatus `json:"status"`
	IsVerified      bool             `json:"is_verified"`
	ValidFrom       time.Time        `json:"valid_from"`
	ValidUntil      time.Time        `json:"valid_until"`
}

// Usable reports whether a session may be created from this ticket at t.
func (h *HallTicket) Usable(t time.Time) bool {
	return h.Status == HallTicketStatusActive &&
		h.IsVerified &&
		!t.Before(h.ValidFrom) &&
		!t.After(h.ValidUntil)
}

// HallTicketLoginRequest is the payload for the scanned-QR login exchange.
type HallTicketLoginRequest struct {
	TicketToken string `json:"ticket_token" binding:"required,min=8,max=64"`
}
