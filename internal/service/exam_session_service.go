package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/invigilo/proctor-backend/internal/proctor"
	ws "github.com/invigilo/proctor-backend/internal/websocket"
)

var (
	ErrSessionNotFound      = errors.New("exam session not found")
	ErrSessionNotActive     = errors.New("exam session is not in progress")
	ErrSessionFinished      = errors.New("exam session is already finished")
	ErrQuestionOutOfRange   = errors.New("question index out of range")
	ErrNotSessionOwner      = errors.New("session does not belong to this student")
	ErrNoQuestionsAvailable = errors.New("no questions available for this exam")
	ErrInvalidEventKind     = errors.New("unknown browser event kind")
)

// AnswerSave is the queue payload for one autosaved answer.
type AnswerSave struct {
	SessionID  uuid.UUID `json:"session_id"`
	QuestionID string    `json:"question_id"`
	Answer     string    `json:"answer"`
}

// sessionRuntime is the in-memory half of a live session: the authoritative
// state snapshot, its detection counters, the countdown canceller and the
// pending auto-submit timer. All field access goes through mu.
type sessionRuntime struct {
	mu          sync.Mutex
	session     *model.ExamSession
	counters    *proctor.Counters
	cancelTimer context.CancelFunc
	submitTimer *time.Timer
}

// stopCountdown cancels the countdown goroutine. Caller holds rt.mu or has
// exclusive access to the runtime.
func (rt *sessionRuntime) stopCountdown() {
	if rt.cancelTimer != nil {
		rt.cancelTimer()
		rt.cancelTimer = nil
	}
}

// ViolationResult is what a browser-event report produced: the classified
// violation, the policy action taken, and the resulting session snapshot.
type ViolationResult struct {
	Violation proctor.Violation
	Action    proctor.PolicyAction
	Incident  *model.SecurityIncident
	Session   *model.ExamSession
}

// FaceSampleResult is the outcome of one face-sample classification.
type FaceSampleResult struct {
	Warning  bool
	Incident *model.SecurityIncident
}

// ExamSessionService owns the session lifecycle: creation from a hall
// ticket, answer and navigation updates, the violation escalation policy,
// the per-session countdown, and the single idempotent terminal transition.
type ExamSessionService struct {
	sessions  SessionStore
	tickets   HallTicketStore
	questions QuestionStore
	incidents *IncidentService
	answers   Queue
	hub       Broadcaster
	policy    proctor.Policy
	counters  *proctor.Registry
	log       zerolog.Logger

	mu   sync.Mutex
	live map[uuid.UUID]*sessionRuntime

	// Overridable in tests to avoid wall-clock waits.
	autoSubmitGrace time.Duration
	tickInterval    time.Duration
	now             func() time.Time
}

func NewExamSessionService(
	sessions SessionStore,
	tickets HallTicketStore,
	questions QuestionStore,
	incidents *IncidentService,
	answers Queue,
	hub Broadcaster,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		sessions:        sessions,
		tickets:         tickets,
		questions:       questions,
		incidents:       incidents,
		answers:         answers,
		hub:             hub,
		policy:          proctor.DefaultPolicy(),
		counters:        proctor.NewRegistry(),
		log:             log.With().Str("component", "exam_session_service").Logger(),
		live:            make(map[uuid.UUID]*sessionRuntime),
		autoSubmitGrace: proctor.AutoSubmitGrace,
		tickInterval:    time.Second,
		now:             time.Now,
	}
}

// Start creates a session for the hall ticket, or returns the existing one
// when the student reconnects. Question selection happens before any write,
// so an empty question bank fails fast and leaves nothing behind.
func (s *ExamSessionService) Start(ctx context.Context, hallTicketID uuid.UUID, studentID int) (*model.ExamSession, error) {
	ticket, err := s.tickets.GetByID(ctx, hallTicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotUsable
		}
		return nil, fmt.Errorf("fetching hall ticket: %w", err)
	}
	if ticket.StudentID != studentID {
		return nil, ErrTicketNotUsable
	}

	// Reconnect path: a session for this ticket already exists.
	existing, err := s.sessions.GetByHallTicket(ctx, hallTicketID)
	switch {
	case err == nil:
		if existing.StudentID != studentID {
			return nil, ErrNotSessionOwner
		}
		if rt, ok := s.runtime(existing.ID); ok {
			rt.mu.Lock()
			defer rt.mu.Unlock()
			return rt.session.Clone(), nil
		}
		if existing.Status.IsTerminal() {
			return existing, nil
		}
		// Live in the database but not in memory (process restart):
		// re-register the runtime and pick the countdown back up.
		rt := s.register(existing)
		s.log.Warn().Str("session_id", existing.ID.String()).Msg("re-adopted orphaned session")
		rt.mu.Lock()
		defer rt.mu.Unlock()
		return rt.session.Clone(), nil
	case errors.Is(err, pgx.ErrNoRows):
		// First start, fall through.
	default:
		return nil, fmt.Errorf("looking up session: %w", err)
	}

	if !ticket.Usable(s.now()) {
		return nil, ErrTicketNotUsable
	}

	qids, err := s.questions.RandomSubset(ctx, ticket.QBankID, ticket.QuestionCount)
	if err != nil {
		return nil, fmt.Errorf("selecting questions: %w", err)
	}
	if len(qids) == 0 {
		return nil, ErrNoQuestionsAvailable
	}

	session := &model.ExamSession{
		ID:              uuid.New(),
		HallTicketID:    hallTicketID,
		StudentID:       studentID,
		Status:          model.SessionStatusInProgress,
		CurrentQuestion: 1,
		QuestionIDs:     qids,
		Answers:         make(map[string]string),
		TimeRemaining:   ticket.DurationMinutes * 60,
		StartedAt:       s.now(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	if err := s.tickets.MarkUsed(ctx, hallTicketID); err != nil {
		s.log.Warn().Err(err).Str("hall_ticket_id", hallTicketID.String()).Msg("failed to mark hall ticket used")
	}

	rt := s.register(session)

	s.log.Info().
		Str("session_id", session.ID.String()).
		Int("student_id", studentID).
		Int("questions", len(qids)).
		Int("duration_sec", session.TimeRemaining).
		Msg("exam session started")

	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.session.Clone(), nil
}

// Get returns the session snapshot, preferring the live runtime over the store.
func (s *ExamSessionService) Get(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.ExamSession, error) {
	if rt, ok := s.runtime(sessionID); ok {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if rt.session.StudentID != studentID {
			return nil, ErrNotSessionOwner
		}
		return rt.session.Clone(), nil
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}
	if session.StudentID != studentID {
		return nil, ErrNotSessionOwner
	}
	return session, nil
}

// Questions returns the session's question set in presentation order,
// without correct answers.
func (s *ExamSessionService) Questions(ctx context.Context, sessionID uuid.UUID, studentID int) ([]model.Question, error) {
	session, err := s.Get(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	return s.questions.ListByIDs(ctx, session.QuestionIDs)
}

// Answer records an answer for a question in the session. Repeated answers
// to the same question overwrite: last write wins.
func (s *ExamSessionService) Answer(ctx context.Context, sessionID uuid.UUID, studentID int, questionID, answer string) (*model.ExamSession, error) {
	rt, ok := s.runtime(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	rt.mu.Lock()
	if err := rt.requireActive(studentID); err != nil {
		rt.mu.Unlock()
		return nil, err
	}
	if !containsQuestion(rt.session.QuestionIDs, questionID) {
		rt.mu.Unlock()
		return nil, ErrQuestionOutOfRange
	}
	rt.session.Answers[questionID] = answer
	snapshot := rt.session.Clone()
	rt.mu.Unlock()

	// Autosave is best-effort; the authoritative copy lives in memory until
	// the terminal transition flushes it.
	if err := s.answers.Enqueue(ctx, AnswerSave{SessionID: sessionID, QuestionID: questionID, Answer: answer}); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to enqueue answer autosave")
	}

	return snapshot, nil
}

// Navigate moves the 1-based question pointer.
func (s *ExamSessionService) Navigate(ctx context.Context, sessionID uuid.UUID, studentID, question int) (*model.ExamSession, error) {
	rt, ok := s.runtime(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.requireActive(studentID); err != nil {
		return nil, err
	}
	if question < 1 || question > len(rt.session.QuestionIDs) {
		return nil, ErrQuestionOutOfRange
	}
	rt.session.CurrentQuestion = question
	return rt.session.Clone(), nil
}

// Resume transitions a paused session back to in-progress and restarts the
// countdown. The persisted state is updated before the clock resumes.
func (s *ExamSessionService) Resume(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.ExamSession, error) {
	rt, ok := s.runtime(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.session.StudentID != studentID {
		return nil, ErrNotSessionOwner
	}
	if rt.session.Status.IsTerminal() {
		return nil, ErrSessionFinished
	}
	if rt.session.Status != model.SessionStatusPaused {
		return nil, ErrSessionNotActive
	}

	rt.session.Status = model.SessionStatusInProgress
	if err := s.sessions.UpdateState(ctx, sessionID, rt.session.Status, rt.session.TimeRemaining, rt.session.ViolationCount, nil); err != nil {
		rt.session.Status = model.SessionStatusPaused
		return nil, fmt.Errorf("persisting resume: %w", err)
	}
	s.startCountdown(rt)

	s.hub.BroadcastToAdmins(ws.PolicyUpdateEvent{
		Event:          ws.EventPolicyUpdate,
		SessionID:      sessionID.String(),
		StudentID:      studentID,
		Action:         "resume",
		ViolationCount: rt.session.ViolationCount,
	})
	s.log.Info().Str("session_id", sessionID.String()).Msg("session resumed")

	return rt.session.Clone(), nil
}

// ReportBrowserEvent counts a browser-level violation, records the incident
// and applies the escalation policy: pause on the first violation,
// auto-submit (after a short grace) when the count reaches the limit.
func (s *ExamSessionService) ReportBrowserEvent(ctx context.Context, sessionID uuid.UUID, studentID int, kind model.IncidentType) (*ViolationResult, error) {
	if !kind.Valid() || !kind.BrowserEvent() {
		return nil, ErrInvalidEventKind
	}

	rt, ok := s.runtime(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	rt.mu.Lock()
	if rt.session.StudentID != studentID {
		rt.mu.Unlock()
		return nil, ErrNotSessionOwner
	}
	if rt.session.Status.IsTerminal() {
		rt.mu.Unlock()
		return nil, ErrSessionFinished
	}

	violation, _ := rt.counters.ClassifyBrowserEvent(kind)
	rt.session.ViolationCount++
	total := rt.session.ViolationCount
	// The session count is authoritative; it survives process restarts,
	// the in-memory counter does not.
	violation.Metadata["violation_count"] = total

	action := s.policy.Decide(total)
	switch action {
	case proctor.ActionPause:
		if rt.session.Status == model.SessionStatusInProgress {
			rt.stopCountdown()
			rt.session.Status = model.SessionStatusPaused
			if err := s.sessions.UpdateState(ctx, sessionID, rt.session.Status, rt.session.TimeRemaining, total, nil); err != nil {
				s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to persist pause")
			}
		}
	case proctor.ActionAutoSubmit:
		if rt.submitTimer == nil {
			rt.submitTimer = time.AfterFunc(s.autoSubmitGrace, func() {
				if _, err := s.Submit(context.Background(), sessionID, studentID, model.SubmitReasonViolation); err != nil {
					s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("policy auto-submit failed")
				}
			})
		}
	}
	snapshot := rt.session.Clone()
	rt.mu.Unlock()

	incident, _ := s.incidents.Record(ctx, sessionID, studentID, violation)

	if action != proctor.ActionNone {
		s.hub.BroadcastToAdmins(ws.PolicyUpdateEvent{
			Event:          ws.EventPolicyUpdate,
			SessionID:      sessionID.String(),
			StudentID:      studentID,
			Action:         action.String(),
			ViolationCount: total,
		})
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("kind", string(kind)).
		Int("violation_count", total).
		Str("policy_action", action.String()).
		Msg("browser violation reported")

	return &ViolationResult{Violation: violation, Action: action, Incident: incident, Session: snapshot}, nil
}

// HandleFaceSample classifies one camera observation. Depending on the
// rolling state this yields a local warning, a recorded incident, a
// lightweight status broadcast, or nothing.
func (s *ExamSessionService) HandleFaceSample(ctx context.Context, sessionID uuid.UUID, studentID int, sample model.FaceSample) (*FaceSampleResult, error) {
	rt, ok := s.runtime(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	rt.mu.Lock()
	if rt.session.StudentID != studentID {
		rt.mu.Unlock()
		return nil, ErrNotSessionOwner
	}
	if rt.session.Status.IsTerminal() {
		rt.mu.Unlock()
		return nil, ErrSessionFinished
	}
	answered := len(rt.session.Answers)
	totalQuestions := len(rt.session.QuestionIDs)
	violations := rt.session.ViolationCount
	rt.mu.Unlock()

	decision := rt.counters.ClassifyFaceSample(sample, s.now())

	result := &FaceSampleResult{Warning: decision.Warning}
	if decision.Violation != nil {
		result.Incident, _ = s.incidents.Record(ctx, sessionID, studentID, *decision.Violation)
	}
	if decision.StatusBroadcast {
		s.hub.BroadcastToAdmins(ws.StudentStatusEvent{
			Event:          ws.EventStudentStatus,
			SessionID:      sessionID.String(),
			StudentID:      studentID,
			Sample:         sample,
			AnsweredCount:  answered,
			TotalQuestions: totalQuestions,
			ViolationCount: violations,
		})
	}
	return result, nil
}

// ReportDisconnect records a network_disconnect incident when a student's
// stream drops mid-exam. It never feeds the escalation policy.
func (s *ExamSessionService) ReportDisconnect(ctx context.Context, sessionID uuid.UUID, studentID int) {
	rt, ok := s.runtime(sessionID)
	if !ok {
		return
	}
	rt.mu.Lock()
	active := rt.session.Status == model.SessionStatusInProgress
	rt.mu.Unlock()
	if !active {
		return
	}
	s.incidents.Record(ctx, sessionID, studentID, proctor.Violation{
		Type:        model.IncidentNetworkDisconnect,
		Severity:    model.SeverityMedium,
		Description: "Student connection dropped during exam",
	})
}

// Submit performs the terminal transition. It is idempotent: submitting an
// already-finished session returns the existing snapshot untouched.
// Persistence failures here are surfaced, never swallowed.
func (s *ExamSessionService) Submit(ctx context.Context, sessionID uuid.UUID, studentID int, reason model.SubmitReason) (*model.ExamSession, error) {
	rt, ok := s.runtime(sessionID)
	if !ok {
		session, err := s.sessions.GetByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("fetching session: %w", err)
		}
		if session.StudentID != studentID {
			return nil, ErrNotSessionOwner
		}
		if session.Status.IsTerminal() {
			return session, nil
		}
		rt = s.register(session)
	}

	rt.mu.Lock()
	if rt.session.StudentID != studentID {
		rt.mu.Unlock()
		return nil, ErrNotSessionOwner
	}
	if rt.session.Status.IsTerminal() {
		snapshot := rt.session.Clone()
		rt.mu.Unlock()
		return snapshot, nil
	}

	rt.stopCountdown()
	if rt.submitTimer != nil {
		rt.submitTimer.Stop()
		rt.submitTimer = nil
	}

	now := s.now()
	rt.session.Status = model.SessionStatusSubmitted
	rt.session.FinishedAt = &now

	var persistErr error
	if err := s.sessions.FinalizeAnswers(ctx, rt.session); err != nil {
		persistErr = fmt.Errorf("persisting final answers: %w", err)
	} else if err := s.sessions.UpdateState(ctx, sessionID, rt.session.Status, rt.session.TimeRemaining, rt.session.ViolationCount, rt.session.FinishedAt); err != nil {
		persistErr = fmt.Errorf("persisting terminal state: %w", err)
	}
	snapshot := rt.session.Clone()
	rt.mu.Unlock()

	// Runtime cleanup happens regardless of persistence outcome; the
	// in-memory state is terminal either way.
	s.mu.Lock()
	delete(s.live, sessionID)
	s.mu.Unlock()
	s.counters.Drop(sessionID)
	s.incidents.ReleaseSession(sessionID)

	if persistErr != nil {
		s.log.Error().Err(persistErr).
			Str("session_id", sessionID.String()).
			Str("reason", string(reason)).
			Msg("terminal transition not persisted")
		return nil, persistErr
	}

	if reason != model.SubmitReasonManual {
		s.hub.BroadcastToAdmins(ws.PolicyUpdateEvent{
			Event:          ws.EventPolicyUpdate,
			SessionID:      sessionID.String(),
			StudentID:      studentID,
			Action:         string(reason),
			ViolationCount: snapshot.ViolationCount,
		})
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("reason", string(reason)).
		Int("answered", len(snapshot.Answers)).
		Msg("exam session submitted")

	return snapshot, nil
}

// LiveCount returns the number of sessions with in-memory runtime state.
func (s *ExamSessionService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown stops all countdown goroutines. Sessions stay resumable in the
// database and are re-adopted on the next start call.
func (s *ExamSessionService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range s.live {
		rt.mu.Lock()
		rt.stopCountdown()
		if rt.submitTimer != nil {
			rt.submitTimer.Stop()
			rt.submitTimer = nil
		}
		rt.mu.Unlock()
	}
}

// register adds a runtime for the session and starts its countdown if the
// session is in progress.
func (s *ExamSessionService) register(session *model.ExamSession) *sessionRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.live[session.ID]; ok {
		return rt
	}
	rt := &sessionRuntime{
		session:  session,
		counters: s.counters.Get(session.ID),
	}
	s.live[session.ID] = rt
	if session.Status == model.SessionStatusInProgress {
		s.startCountdown(rt)
	}
	return rt
}

func (s *ExamSessionService) runtime(sessionID uuid.UUID) (*sessionRuntime, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.live[sessionID]
	return rt, ok
}

// startCountdown launches the 1 Hz countdown goroutine for rt. Caller has
// exclusive access to rt (holds rt.mu or just created it).
func (s *ExamSessionService) startCountdown(rt *sessionRuntime) {
	ctx, cancel := context.WithCancel(context.Background())
	rt.cancelTimer = cancel

	go func() {
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if expired, sessionID, studentID := s.tick(rt); expired {
					if _, err := s.Submit(context.Background(), sessionID, studentID, model.SubmitReasonTimeExpired); err != nil {
						s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("time-expiry submit failed")
					}
					return
				}
			}
		}
	}()
}

// tick decrements one second of remaining time; reports whether the clock
// reached zero. Paused or finished sessions are left untouched.
func (s *ExamSessionService) tick(rt *sessionRuntime) (bool, uuid.UUID, int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.session.Status != model.SessionStatusInProgress {
		return false, rt.session.ID, rt.session.StudentID
	}
	rt.session.TimeRemaining--
	if rt.session.TimeRemaining <= 0 {
		rt.session.TimeRemaining = 0
		return true, rt.session.ID, rt.session.StudentID
	}
	return false, rt.session.ID, rt.session.StudentID
}

// requireActive checks ownership and that the session accepts mutations.
// Caller holds rt.mu.
func (rt *sessionRuntime) requireActive(studentID int) error {
	if rt.session.StudentID != studentID {
		return ErrNotSessionOwner
	}
	if rt.session.Status.IsTerminal() {
		return ErrSessionFinished
	}
	if rt.session.Status != model.SessionStatusInProgress {
		return ErrSessionNotActive
	}
	return nil
}

func containsQuestion(ids []uuid.UUID, questionID string) bool {
	for _, id := range ids {
		if id.String() == questionID {
			return true
		}
	}
	return false
}
