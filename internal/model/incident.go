package model

import (
	"time"

	"github.com/google/uuid"
)

// IncidentType enumerates the kinds of security incidents.
type IncidentType string

const (
	IncidentMultipleFaces     IncidentType = "multiple_faces"
	IncidentLookingAway       IncidentType = "looking_away"
	IncidentLookingAwayRepeat IncidentType = "looking_away_repeated"
	IncidentFullscreenExit    IncidentType = "fullscreen_exit"
	IncidentTabSwitch         IncidentType = "tab_switch"
	IncidentWindowBlur        IncidentType = "window_blur"
	IncidentKeyViolation      IncidentType = "key_violation"
	IncidentNetworkDisconnect IncidentType = "network_disconnect"
)

// Valid reports whether t is a known incident type.
func (t IncidentType) Valid() bool {
	switch t {
	case IncidentMultipleFaces, IncidentLookingAway, IncidentLookingAwayRepeat,
		IncidentFullscreenExit, IncidentTabSwitch, IncidentWindowBlur,
		IncidentKeyViolation, IncidentNetworkDisconnect:
		return true
	}
	return false
}

// BrowserEvent reports whether t originates from the browser-event path
// (and therefore counts toward the escalation policy).
func (t IncidentType) BrowserEvent() bool {
	switch t {
	case IncidentFullscreenExit, IncidentTabSwitch, IncidentWindowBlur, IncidentKeyViolation:
		return true
	}
	return false
}

// Severity grades an incident for admin triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SecurityIncident is the persisted, reviewable record of a violation.
// Immutable except for the resolution fields, which transition exactly once.
type SecurityIncident struct {
	ID          uuid.UUID              `json:"id"`
	SessionID   uuid.UUID              `json:"session_id"`
	Type        IncidentType           `json:"incident_type"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	IsResolved  bool                   `json:"is_resolved"`
	ResolvedBy  *int                   `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}
