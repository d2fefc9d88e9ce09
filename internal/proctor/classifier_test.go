package proctor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/proctor-backend/internal/model"
)

func sampleAway() model.FaceSample {
	return model.FaceSample{FaceDetected: true, LookingAway: true, Confidence: 0.9}
}

func sampleAttentive() model.FaceSample {
	return model.FaceSample{FaceDetected: true, LookingAway: false, Confidence: 0.95}
}

func TestClassifyFaceSample_MultipleFacesAlwaysCritical(t *testing.T) {
	c := &Counters{}
	now := time.Now()

	for i := 0; i < 5; i++ {
		d := c.ClassifyFaceSample(model.FaceSample{FaceDetected: true, MultipleFaces: true}, now)
		require.NotNil(t, d.Violation, "sample %d", i)
		assert.Equal(t, model.IncidentMultipleFaces, d.Violation.Type)
		assert.Equal(t, model.SeverityCritical, d.Violation.Severity)
	}
}

func TestClassifyFaceSample_LookAwayEscalation(t *testing.T) {
	c := &Counters{}
	now := time.Now()

	// Baseline attentive sample to prove the streak starts at zero.
	d := c.ClassifyFaceSample(sampleAttentive(), now)
	assert.Nil(t, d.Violation)
	assert.False(t, d.Warning)

	// Streak 1: local warning only, no incident.
	d = c.ClassifyFaceSample(sampleAway(), now)
	assert.True(t, d.Warning)
	assert.Nil(t, d.Violation)

	// Streak 2: silence.
	d = c.ClassifyFaceSample(sampleAway(), now)
	assert.False(t, d.Warning)
	assert.Nil(t, d.Violation)

	// Streak 3: high-severity repeated look-away.
	d = c.ClassifyFaceSample(sampleAway(), now)
	require.NotNil(t, d.Violation)
	assert.Equal(t, model.IncidentLookingAwayRepeat, d.Violation.Type)
	assert.Equal(t, model.SeverityHigh, d.Violation.Severity)

	// Streak 4 and beyond: medium continuation incidents.
	d = c.ClassifyFaceSample(sampleAway(), now)
	require.NotNil(t, d.Violation)
	assert.Equal(t, model.IncidentLookingAway, d.Violation.Type)
	assert.Equal(t, model.SeverityMedium, d.Violation.Severity)
}

func TestClassifyFaceSample_StreakResetsOnAttentive(t *testing.T) {
	c := &Counters{}
	now := time.Now()

	c.ClassifyFaceSample(sampleAway(), now)
	c.ClassifyFaceSample(sampleAway(), now)
	c.ClassifyFaceSample(sampleAttentive(), now)

	// Back to streak 1: warning again, never the high-severity incident.
	d := c.ClassifyFaceSample(sampleAway(), now)
	assert.True(t, d.Warning)
	assert.Nil(t, d.Violation)
}

func TestClassifyFaceSample_NoFaceDoesNotReset(t *testing.T) {
	c := &Counters{}
	now := time.Now()

	c.ClassifyFaceSample(sampleAway(), now)
	c.ClassifyFaceSample(sampleAway(), now)

	// Face lost entirely: neither a streak increment nor a reset.
	d := c.ClassifyFaceSample(model.FaceSample{FaceDetected: false}, now)
	assert.Nil(t, d.Violation)

	d = c.ClassifyFaceSample(sampleAway(), now)
	require.NotNil(t, d.Violation)
	assert.Equal(t, model.IncidentLookingAwayRepeat, d.Violation.Type)
}

func TestClassifyFaceSample_StatusBroadcastThrottle(t *testing.T) {
	c := &Counters{}
	start := time.Now()

	// First attentive sample after more than the throttle window broadcasts.
	d := c.ClassifyFaceSample(sampleAttentive(), start)
	assert.True(t, d.StatusBroadcast)

	// Within the window: silent.
	d = c.ClassifyFaceSample(sampleAttentive(), start.Add(5*time.Second))
	assert.False(t, d.StatusBroadcast)
	d = c.ClassifyFaceSample(sampleAttentive(), start.Add(10*time.Second))
	assert.False(t, d.StatusBroadcast)

	// Past the window: broadcasts again.
	d = c.ClassifyFaceSample(sampleAttentive(), start.Add(11*time.Second))
	assert.True(t, d.StatusBroadcast)
}

func TestClassifyBrowserEvent_CountsAcrossKinds(t *testing.T) {
	c := &Counters{}

	v, total := c.ClassifyBrowserEvent(model.IncidentTabSwitch)
	assert.Equal(t, 1, total)
	assert.Equal(t, model.IncidentTabSwitch, v.Type)
	assert.Equal(t, model.SeverityMedium, v.Severity)

	// A different kind still increments the same counter.
	_, total = c.ClassifyBrowserEvent(model.IncidentFullscreenExit)
	assert.Equal(t, 2, total)
	_, total = c.ClassifyBrowserEvent(model.IncidentKeyViolation)
	assert.Equal(t, 3, total)

	assert.Equal(t, 3, c.BrowserViolations())
}
