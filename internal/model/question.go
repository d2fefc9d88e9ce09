package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Question represents a single multiple-choice question.
// Options is a JSON object keyed by option letter.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	QBankID       uuid.UUID       `json:"qbank_id"`
	QuestionText  string          `json:"question_text"`
	Options       json.RawMessage `json:"options"`
	CorrectOption string          `json:"-"`
	OrderNum      int             `json:"order_num"`
}
