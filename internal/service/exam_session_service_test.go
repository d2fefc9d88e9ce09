package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/invigilo/proctor-backend/internal/proctor"
	ws "github.com/invigilo/proctor-backend/internal/websocket"
)

type testEnv struct {
	svc       *ExamSessionService
	sessions  *fakeSessionStore
	tickets   *fakeTicketStore
	questions *fakeQuestionStore
	incQueue  *fakeQueue
	ansQueue  *fakeQueue
	hub       *fakeHub
	ticket    *model.HallTicket
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sessions := newFakeSessionStore()
	tickets := newFakeTicketStore()
	questions := &fakeQuestionStore{qids: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}}
	incQueue := &fakeQueue{}
	ansQueue := &fakeQueue{}
	hub := &fakeHub{}

	incidents := NewIncidentService(&fakeIncidentStore{}, fakeStudentStore{}, incQueue, hub, zerolog.Nop())
	svc := NewExamSessionService(sessions, tickets, questions, incidents, ansQueue, hub, zerolog.Nop())
	// No wall-clock behavior in unit tests: ticks are driven manually and
	// the auto-submit grace is shortened per test.
	svc.tickInterval = time.Hour
	svc.autoSubmitGrace = time.Hour
	t.Cleanup(svc.Shutdown)

	ticket := &model.HallTicket{
		ID:              uuid.New(),
		TicketToken:     "tok-123456789",
		StudentID:       7,
		ExamTitle:       "Unit Exam",
		QBankID:         uuid.New(),
		QuestionCount:   3,
		DurationMinutes: 30,
		Status:          model.HallTicketStatusActive,
		IsVerified:      true,
		ValidFrom:       time.Now().Add(-time.Hour),
		ValidUntil:      time.Now().Add(time.Hour),
	}
	tickets.add(ticket)

	return &testEnv{
		svc: svc, sessions: sessions, tickets: tickets, questions: questions,
		incQueue: incQueue, ansQueue: ansQueue, hub: hub, ticket: ticket,
	}
}

func (e *testEnv) start(t *testing.T) *model.ExamSession {
	t.Helper()
	session, err := e.svc.Start(context.Background(), e.ticket.ID, e.ticket.StudentID)
	require.NoError(t, err)
	return session
}

func (e *testEnv) incidentEvents() []ws.IncidentEvent {
	var out []ws.IncidentEvent
	for _, ev := range e.hub.all() {
		if ie, ok := ev.(ws.IncidentEvent); ok {
			out = append(out, ie)
		}
	}
	return out
}

func (e *testEnv) policyEvents() []ws.PolicyUpdateEvent {
	var out []ws.PolicyUpdateEvent
	for _, ev := range e.hub.all() {
		if pe, ok := ev.(ws.PolicyUpdateEvent); ok {
			out = append(out, pe)
		}
	}
	return out
}

func TestStart_CreatesInProgressSession(t *testing.T) {
	e := newTestEnv(t)

	session := e.start(t)

	assert.Equal(t, model.SessionStatusInProgress, session.Status)
	assert.Equal(t, 1, session.CurrentQuestion)
	assert.Len(t, session.QuestionIDs, 3)
	assert.Equal(t, 30*60, session.TimeRemaining)
	assert.Equal(t, 0, session.ViolationCount)
	assert.Empty(t, session.Answers)

	// Persisted and the ticket consumed.
	assert.NotNil(t, e.sessions.stored(session.ID))
	assert.Equal(t, 1, e.tickets.used)
	assert.Equal(t, 1, e.svc.LiveCount())
}

func TestStart_IsIdempotentForSameTicket(t *testing.T) {
	e := newTestEnv(t)

	first := e.start(t)
	second := e.start(t)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.QuestionIDs, second.QuestionIDs)
	assert.Equal(t, 1, e.svc.LiveCount())
}

func TestStart_EmptyBankFailsBeforeAnyWrite(t *testing.T) {
	e := newTestEnv(t)
	e.questions.qids = nil

	_, err := e.svc.Start(context.Background(), e.ticket.ID, e.ticket.StudentID)

	assert.ErrorIs(t, err, ErrNoQuestionsAvailable)
	assert.Equal(t, 0, e.tickets.used)
	assert.Equal(t, 0, e.svc.LiveCount())
}

func TestStart_RejectsUnusableTicket(t *testing.T) {
	e := newTestEnv(t)
	e.ticket.ValidUntil = time.Now().Add(-time.Minute)
	e.tickets.add(e.ticket)

	_, err := e.svc.Start(context.Background(), e.ticket.ID, e.ticket.StudentID)
	assert.ErrorIs(t, err, ErrTicketNotUsable)

	// Wrong student gets the same answer.
	_, err = e.svc.Start(context.Background(), e.ticket.ID, 999)
	assert.ErrorIs(t, err, ErrTicketNotUsable)
}

func TestAnswer_LastWriteWins(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)
	ctx := context.Background()
	q1 := session.QuestionIDs[0].String()
	q2 := session.QuestionIDs[1].String()

	_, err := e.svc.Answer(ctx, session.ID, session.StudentID, q1, "A")
	require.NoError(t, err)
	_, err = e.svc.Answer(ctx, session.ID, session.StudentID, q1, "B")
	require.NoError(t, err)
	got, err := e.svc.Answer(ctx, session.ID, session.StudentID, q2, "C")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{q1: "B", q2: "C"}, got.Answers)
	assert.Equal(t, 3, e.ansQueue.len(), "every save is autosaved")
}

func TestAnswer_RejectsUnknownQuestion(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)

	_, err := e.svc.Answer(context.Background(), session.ID, session.StudentID, uuid.New().String(), "A")
	assert.ErrorIs(t, err, ErrQuestionOutOfRange)
}

func TestNavigate_Bounds(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)
	ctx := context.Background()

	_, err := e.svc.Navigate(ctx, session.ID, session.StudentID, 0)
	assert.ErrorIs(t, err, ErrQuestionOutOfRange)
	_, err = e.svc.Navigate(ctx, session.ID, session.StudentID, 4)
	assert.ErrorIs(t, err, ErrQuestionOutOfRange)

	got, err := e.svc.Navigate(ctx, session.ID, session.StudentID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentQuestion)
}

func TestBrowserViolation_PausesOnFirst(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)

	result, err := e.svc.ReportBrowserEvent(context.Background(), session.ID, session.StudentID, model.IncidentTabSwitch)
	require.NoError(t, err)

	assert.Equal(t, proctor.ActionPause, result.Action)
	assert.Equal(t, model.SessionStatusPaused, result.Session.Status)
	assert.Equal(t, 1, result.Session.ViolationCount)
	require.NotNil(t, result.Incident)
	assert.Equal(t, model.IncidentTabSwitch, result.Incident.Type)

	// Pause is persisted, the incident is broadcast, the pause announced.
	assert.Equal(t, model.SessionStatusPaused, e.sessions.stored(session.ID).Status)
	require.Len(t, e.incidentEvents(), 1)
	assert.Equal(t, "Test Student", e.incidentEvents()[0].StudentName)
	require.Len(t, e.policyEvents(), 1)
	assert.Equal(t, "pause", e.policyEvents()[0].Action)

	// The paused clock no longer ticks.
	rt, ok := e.svc.runtime(session.ID)
	require.True(t, ok)
	before := rt.session.TimeRemaining
	expired, _, _ := e.svc.tick(rt)
	assert.False(t, expired)
	assert.Equal(t, before, rt.session.TimeRemaining)
}

func TestBrowserViolation_AutoSubmitAtThird(t *testing.T) {
	e := newTestEnv(t)
	e.svc.autoSubmitGrace = 10 * time.Millisecond
	session := e.start(t)
	ctx := context.Background()

	_, err := e.svc.ReportBrowserEvent(ctx, session.ID, session.StudentID, model.IncidentTabSwitch)
	require.NoError(t, err)
	_, err = e.svc.Resume(ctx, session.ID, session.StudentID)
	require.NoError(t, err)

	_, err = e.svc.ReportBrowserEvent(ctx, session.ID, session.StudentID, model.IncidentWindowBlur)
	require.NoError(t, err)

	result, err := e.svc.ReportBrowserEvent(ctx, session.ID, session.StudentID, model.IncidentFullscreenExit)
	require.NoError(t, err)
	assert.Equal(t, proctor.ActionAutoSubmit, result.Action)
	assert.Equal(t, 3, result.Session.ViolationCount)

	// The grace window elapses and the session is force-submitted.
	require.Eventually(t, func() bool {
		return e.sessions.stored(session.ID).Status == model.SessionStatusSubmitted
	}, time.Second, 5*time.Millisecond)

	stored := e.sessions.stored(session.ID)
	require.NotNil(t, stored.FinishedAt)
	assert.Equal(t, 0, e.svc.LiveCount(), "runtime cleaned up after terminal transition")
}

func TestBrowserViolation_GateSuppressesRepeats(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := e.svc.ReportBrowserEvent(ctx, session.ID, session.StudentID, model.IncidentTabSwitch)
		require.NoError(t, err)
	}

	// All five count toward the policy, only three incidents pass the gate.
	rt, ok := e.svc.runtime(session.ID)
	require.True(t, ok)
	assert.Equal(t, 5, rt.session.ViolationCount)
	assert.Len(t, e.incidentEvents(), 3)
	assert.Equal(t, 3, e.incQueue.len())
}

func TestResume_RequiresPausedState(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)

	_, err := e.svc.Resume(context.Background(), session.ID, session.StudentID)
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestSubmit_IsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)
	ctx := context.Background()

	first, err := e.svc.Submit(ctx, session.ID, session.StudentID, model.SubmitReasonManual)
	require.NoError(t, err)
	require.NotNil(t, first.FinishedAt)
	assert.Equal(t, model.SessionStatusSubmitted, first.Status)

	second, err := e.svc.Submit(ctx, session.ID, session.StudentID, model.SubmitReasonManual)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusSubmitted, second.Status)
	assert.True(t, first.FinishedAt.Equal(*second.FinishedAt), "end time never moves on repeat submits")

	assert.Equal(t, 1, e.sessions.finalizes, "answers flushed exactly once")
}

func TestSubmit_MutationsRejectedAfterTerminal(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)
	ctx := context.Background()
	q1 := session.QuestionIDs[0].String()

	_, err := e.svc.Submit(ctx, session.ID, session.StudentID, model.SubmitReasonManual)
	require.NoError(t, err)

	_, err = e.svc.Answer(ctx, session.ID, session.StudentID, q1, "A")
	// Runtime is gone after the terminal transition; either way the write
	// must be refused.
	assert.Error(t, err)
}

func TestSubmit_PersistFailureIsLoud(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)
	e.sessions.failUpdate = assert.AnError

	_, err := e.svc.Submit(context.Background(), session.ID, session.StudentID, model.SubmitReasonManual)
	assert.Error(t, err)
}

func TestTimer_ExpiryTriggersSingleSubmit(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)
	ctx := context.Background()

	rt, ok := e.svc.runtime(session.ID)
	require.True(t, ok)
	rt.mu.Lock()
	rt.session.TimeRemaining = 2
	rt.mu.Unlock()

	expired, sid, uid := e.svc.tick(rt)
	assert.False(t, expired)
	expired, sid, uid = e.svc.tick(rt)
	require.True(t, expired)

	submitted, err := e.svc.Submit(ctx, sid, uid, model.SubmitReasonTimeExpired)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusSubmitted, submitted.Status)
	assert.Equal(t, 0, submitted.TimeRemaining)

	// A straggling expiry after manual interleave is a no-op.
	again, err := e.svc.Submit(ctx, sid, uid, model.SubmitReasonTimeExpired)
	require.NoError(t, err)
	assert.True(t, submitted.FinishedAt.Equal(*again.FinishedAt))
}

func TestFaceSample_EscalationPath(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)
	ctx := context.Background()
	away := model.FaceSample{FaceDetected: true, LookingAway: true, Confidence: 0.8}

	r1, err := e.svc.HandleFaceSample(ctx, session.ID, session.StudentID, away)
	require.NoError(t, err)
	assert.True(t, r1.Warning)
	assert.Nil(t, r1.Incident)

	r2, err := e.svc.HandleFaceSample(ctx, session.ID, session.StudentID, away)
	require.NoError(t, err)
	assert.False(t, r2.Warning)
	assert.Nil(t, r2.Incident)

	r3, err := e.svc.HandleFaceSample(ctx, session.ID, session.StudentID, away)
	require.NoError(t, err)
	require.NotNil(t, r3.Incident)
	assert.Equal(t, model.IncidentLookingAwayRepeat, r3.Incident.Type)
	assert.Equal(t, model.SeverityHigh, r3.Incident.Severity)

	// Face violations never move the browser policy counter.
	assert.Equal(t, 0, session.ViolationCount)
	rt, _ := e.svc.runtime(session.ID)
	assert.Equal(t, model.SessionStatusInProgress, rt.session.Status)
}

func TestFaceSample_StatusBroadcastCarriesProgress(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)
	ctx := context.Background()

	_, err := e.svc.Answer(ctx, session.ID, session.StudentID, session.QuestionIDs[0].String(), "A")
	require.NoError(t, err)

	_, err = e.svc.HandleFaceSample(ctx, session.ID, session.StudentID, model.FaceSample{FaceDetected: true})
	require.NoError(t, err)

	var statuses []ws.StudentStatusEvent
	for _, ev := range e.hub.all() {
		if se, ok := ev.(ws.StudentStatusEvent); ok {
			statuses = append(statuses, se)
		}
	}
	require.Len(t, statuses, 1)
	assert.Equal(t, 1, statuses[0].AnsweredCount)
	assert.Equal(t, 3, statuses[0].TotalQuestions)
}

func TestReportDisconnect_OnlyWhileInProgress(t *testing.T) {
	e := newTestEnv(t)
	session := e.start(t)
	ctx := context.Background()

	e.svc.ReportDisconnect(ctx, session.ID, session.StudentID)
	require.Len(t, e.incidentEvents(), 1)
	assert.Equal(t, model.IncidentNetworkDisconnect, e.incidentEvents()[0].Incident.Type)

	_, err := e.svc.Submit(ctx, session.ID, session.StudentID, model.SubmitReasonManual)
	require.NoError(t, err)

	e.svc.ReportDisconnect(ctx, session.ID, session.StudentID)
	assert.Len(t, e.incidentEvents(), 1, "no disconnect incident after submission")
}
