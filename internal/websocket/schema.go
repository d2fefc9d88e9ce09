package websocket

import "github.com/invigilo/proctor-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAuth       Action = "auth"
	ActionFaceSample Action = "face_sample"
	ActionViolation  Action = "violation"
	ActionAnswer     Action = "answer"
	ActionNavigate   Action = "navigate"
	ActionResume     Action = "resume"
	ActionSubmit     Action = "submit"
	ActionVideoFeed  Action = "video_feed"
	ActionPing       Action = "ping"
)

// UserType declared in the auth message.
const (
	UserTypeAdmin   = "admin"
	UserTypeStudent = "student"
)

// RequestPayload is the union request shape for both stream endpoints.
// Action selects which fields are meaningful.
type RequestPayload struct {
	Action Action `json:"action"`

	// auth
	UserID   int    `json:"user_id,omitempty"`
	UserType string `json:"user_type,omitempty"`

	// face_sample
	Sample *model.FaceSample `json:"sample,omitempty"`

	// violation (browser-event report)
	Kind string `json:"kind,omitempty"`

	// answer
	QID    string `json:"q_id,omitempty"`
	Answer string `json:"ans,omitempty"`

	// navigate
	Question int `json:"question,omitempty"`

	// video_feed (base64 snapshot)
	Image string `json:"image,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError            Event = "error"
	EventSuccess          Event = "success"
	EventWarning          Event = "warning"
	EventSessionState     Event = "session_state"
	EventSecurityIncident Event = "security_incident"
	EventStudentStatus    Event = "student_status"
	EventVideoFeed        Event = "video_feed"
	EventPolicyUpdate     Event = "policy_update"
	EventPong             Event = "pong"
)

// ErrorResponse is sent to the originating connection on a rejected request.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// WarningResponse is a local-only student warning (no incident persisted).
type WarningResponse struct {
	Event   Event  `json:"event"`
	Message string `json:"message"`
}

// SessionStateResponse carries the session snapshot after an accepted mutation.
type SessionStateResponse struct {
	Event   Event              `json:"event"`
	Session *model.ExamSession `json:"session"`
}

// IncidentEvent is pushed to admins for every persisted incident, with
// denormalized student display fields for the monitoring UI.
type IncidentEvent struct {
	Event       Event                   `json:"event"`
	Incident    *model.SecurityIncident `json:"incident"`
	StudentName string                  `json:"student_name,omitempty"`
	RollNumber  string                  `json:"roll_number,omitempty"`
}

// StudentStatusEvent is a lightweight detection/progress snapshot; it never
// creates a persisted incident.
type StudentStatusEvent struct {
	Event          Event            `json:"event"`
	SessionID      string           `json:"session_id"`
	StudentID      int              `json:"student_id"`
	Sample         model.FaceSample `json:"sample"`
	AnsweredCount  int              `json:"answered_count"`
	TotalQuestions int              `json:"total_questions"`
	ViolationCount int              `json:"violation_count"`
}

// VideoFeedEvent relays a student webcam snapshot to all admins.
// Global broadcast scope, deliberately not session-targeted.
type VideoFeedEvent struct {
	Event     Event  `json:"event"`
	SessionID string `json:"session_id"`
	StudentID int    `json:"student_id"`
	Image     string `json:"image"`
}

// PolicyUpdateEvent announces a pause/auto-submit taken by the state machine,
// so admins can tell "violation logged" apart from "exam auto-paused/submitted".
type PolicyUpdateEvent struct {
	Event          Event  `json:"event"`
	SessionID      string `json:"session_id"`
	StudentID      int    `json:"student_id"`
	Action         string `json:"policy_action"`
	ViolationCount int    `json:"violation_count"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Event Event `json:"event"`
}
