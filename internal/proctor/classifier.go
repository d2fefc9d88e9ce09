package proctor

import (
	"fmt"
	"time"

	"github.com/invigilo/proctor-backend/internal/model"
)

const (
	// lookAwayNotifyAt is the streak length at which the admin is first
	// notified (a single glance away only warns the student locally).
	lookAwayNotifyAt = 3

	// statusBroadcastEvery bounds how often an attentive session emits a
	// lightweight student_status broadcast.
	statusBroadcastEvery = 10 * time.Second
)

// Violation is the transient output of classification: the shape of an
// incident before it has been gated and persisted.
type Violation struct {
	Type        model.IncidentType
	Severity    model.Severity
	Description string
	Metadata    map[string]interface{}
}

// Decision is the result of classifying one face sample.
// At most one of Violation / Warning / StatusBroadcast is set.
type Decision struct {
	Violation       *Violation
	Warning         bool // local-only UI warning, no incident
	StatusBroadcast bool // lightweight admin status push, no incident
}

// ClassifyFaceSample applies the face-sample rules to one observation and
// updates the rolling counters.
//
// Multiple faces is always critical and always reported. A look-away streak
// warns at 1, escalates to a high-severity incident at exactly 3, and keeps
// logging medium-severity incidents for every sample past 3; the streak
// resets on any sample where the face is visible and not looking away.
func (c *Counters) ClassifyFaceSample(s model.FaceSample, now time.Time) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.MultipleFaces {
		c.multipleFace++
		return Decision{Violation: &Violation{
			Type:        model.IncidentMultipleFaces,
			Severity:    model.SeverityCritical,
			Description: "Multiple faces detected in camera frame",
			Metadata: map[string]interface{}{
				"confidence":  s.Confidence,
				"occurrences": c.multipleFace,
			},
		}}
	}

	if s.LookingAway {
		c.lookAway++
		switch {
		case c.lookAway == 1:
			return Decision{Warning: true}
		case c.lookAway < lookAwayNotifyAt:
			return Decision{}
		case c.lookAway == lookAwayNotifyAt:
			return Decision{Violation: &Violation{
				Type:        model.IncidentLookingAwayRepeat,
				Severity:    model.SeverityHigh,
				Description: fmt.Sprintf("Student looked away %d times in a row", c.lookAway),
				Metadata: map[string]interface{}{
					"confidence": s.Confidence,
					"streak":     c.lookAway,
				},
			}}
		default:
			return Decision{Violation: &Violation{
				Type:        model.IncidentLookingAway,
				Severity:    model.SeverityMedium,
				Description: "Student is still looking away from the screen",
				Metadata: map[string]interface{}{
					"confidence": s.Confidence,
					"streak":     c.lookAway,
				},
			}}
		}
	}

	if s.FaceDetected {
		c.lookAway = 0
		if now.Sub(c.lastStatusBroadcast) > statusBroadcastEvery {
			c.lastStatusBroadcast = now
			return Decision{StatusBroadcast: true}
		}
	}

	return Decision{}
}

// ClassifyBrowserEvent maps a browser-level security event to a violation
// and increments the session's browser violation counter. The returned
// total drives the escalation policy. Every qualifying event is reported;
// kind never changes the policy outcome, only the count does.
func (c *Counters) ClassifyBrowserEvent(kind model.IncidentType) (Violation, int) {
	c.mu.Lock()
	c.browserViolations++
	total := c.browserViolations
	c.mu.Unlock()

	return Violation{
		Type:        kind,
		Severity:    model.SeverityMedium,
		Description: browserEventDescription(kind),
		Metadata: map[string]interface{}{
			"violation_count": total,
		},
	}, total
}

func browserEventDescription(kind model.IncidentType) string {
	switch kind {
	case model.IncidentFullscreenExit:
		return "Student exited fullscreen mode"
	case model.IncidentTabSwitch:
		return "Student switched to another tab"
	case model.IncidentWindowBlur:
		return "Exam window lost focus"
	case model.IncidentKeyViolation:
		return "Blocked key combination pressed"
	case model.IncidentNetworkDisconnect:
		return "Student connection dropped during exam"
	default:
		return "Browser security event"
	}
}
