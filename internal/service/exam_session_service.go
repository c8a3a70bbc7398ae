package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itilprep/itil-exam-backend/internal/exam"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/rs/zerolog"
)

// Session registry errors.
var (
	ErrSessionNotFound  = errors.New("exam session not found")
	ErrSessionForbidden = errors.New("exam session belongs to another user")
)

// persistTimeout bounds one asynchronous persistence attempt.
const persistTimeout = 15 * time.Second

// CatalogReader supplies the question pool for new sessions.
type CatalogReader interface {
	ListQuestions(ctx context.Context) ([]model.Question, error)
}

// ResultPersister stores a submitted result and reports how it went.
type ResultPersister interface {
	Persist(ctx context.Context, result model.ExamResult) PersistOutcome
}

// SessionView is a session state plus how its result was persisted.
type SessionView struct {
	exam.State
	Persistence *PersistOutcome `json:"persistence,omitempty"`
}

// Navigation holds the jump targets offered next to the question grid.
type Navigation struct {
	CurrentIndex    int  `json:"current_index"`
	Total           int  `json:"total"`
	FirstUnanswered *int `json:"first_unanswered"`
	FirstFlagged    *int `json:"first_flagged"`
}

type activeSession struct {
	session *exam.Session

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  bool
	outcome  *PersistOutcome
	touched  time.Time
	finished time.Time
}

// bindCountdown attaches the countdown's cancel func. A session stopped
// before the countdown was bound cancels it straight away.
func (a *activeSession) bindCountdown(cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		cancel()
		return
	}
	a.cancel = cancel
}

func (a *activeSession) stopLocked() {
	a.stopped = true
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *activeSession) touch(now time.Time) {
	a.mu.Lock()
	a.touched = now
	a.mu.Unlock()
}

// ExamSessionService owns every live mock-exam session: it creates them from
// the catalog, runs one countdown per running session, hands submitted
// results to persistence without blocking the caller, and streams changes
// to subscribers.
type ExamSessionService struct {
	catalog      CatalogReader
	results      ResultPersister
	cfg          exam.Config
	tickInterval time.Duration
	retention    time.Duration
	now          func() time.Time
	log          zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[uuid.UUID]*activeSession
	closed   bool
	events   *eventBus
	persists sync.WaitGroup
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(catalog CatalogReader, results ResultPersister, cfg exam.Config, retention time.Duration, log zerolog.Logger) *ExamSessionService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ExamSessionService{
		catalog:      catalog,
		results:      results,
		cfg:          cfg,
		tickInterval: time.Second,
		retention:    retention,
		now:          time.Now,
		log:          log.With().Str("component", "exam_session_service").Logger(),
		baseCtx:      ctx,
		baseCancel:   cancel,
		sessions:     make(map[uuid.UUID]*activeSession),
		events:       newEventBus(),
	}
}

// SetTickInterval shortens the countdown period; tests use milliseconds.
func (s *ExamSessionService) SetTickInterval(d time.Duration) {
	s.tickInterval = d
}

// Create samples a new NotStarted session. userID may be empty for anonymous attempts.
func (s *ExamSessionService) Create(ctx context.Context, userID string) (*SessionView, error) {
	pool, err := s.catalog.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}

	as := &activeSession{touched: s.now()}
	opts := []exam.Option{
		exam.WithSubmitHook(func(r model.ExamResult) { s.onSubmit(as, r) }),
	}
	if userID != "" {
		opts = append(opts, exam.WithUser(userID))
	}
	sess, err := exam.NewSession(pool, s.cfg, opts...)
	if err != nil {
		if errors.Is(err, exam.ErrNoQuestions) {
			return nil, ErrRepositoryUnavailable
		}
		return nil, fmt.Errorf("new session: %w", err)
	}
	as.session = sess

	s.mu.Lock()
	s.sessions[sess.ID()] = as
	s.mu.Unlock()

	s.log.Info().
		Str("session_id", sess.ID().String()).
		Str("user_id", userID).
		Int("questions", sess.Snapshot().Total).
		Msg("Exam session created")

	return s.view(as), nil
}

// lookup returns the session if userID may access it. Sessions bound to a
// user are only reachable with that user's token.
func (s *ExamSessionService) lookup(id uuid.UUID, userID string) (*activeSession, error) {
	s.mu.RLock()
	as, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if owner := as.session.UserID(); owner != "" && owner != userID {
		return nil, ErrSessionForbidden
	}
	as.touch(s.now())
	return as, nil
}

func (s *ExamSessionService) view(as *activeSession) *SessionView {
	v := &SessionView{State: as.session.Snapshot()}
	as.mu.Lock()
	if as.outcome != nil {
		o := *as.outcome
		v.Persistence = &o
	}
	as.mu.Unlock()
	return v
}

// Start begins the timed attempt and its countdown.
func (s *ExamSessionService) Start(id uuid.UUID, userID string) (*SessionView, error) {
	as, err := s.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	if err := as.session.Start(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	as.bindCountdown(cancel)

	go exam.Countdown(ctx, as.session, s.tickInterval, func(remaining int) {
		s.events.publish(id, SessionEvent{Type: EventTick, SessionID: id.String(), Remaining: &remaining})
	})

	v := s.view(as)
	s.events.publish(id, SessionEvent{Type: EventStarted, SessionID: id.String(), State: &v.State})
	return v, nil
}

// mutate runs fn on the session and publishes the new state.
func (s *ExamSessionService) mutate(id uuid.UUID, userID string, fn func(*exam.Session) error) (*SessionView, error) {
	as, err := s.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(as.session); err != nil {
		return nil, err
	}
	v := s.view(as)
	s.events.publish(id, SessionEvent{Type: EventUpdated, SessionID: id.String(), State: &v.State})
	return v, nil
}

func (s *ExamSessionService) SelectAnswer(id uuid.UUID, userID string, index, option int) (*SessionView, error) {
	return s.mutate(id, userID, func(e *exam.Session) error { return e.SelectAnswer(index, option) })
}

func (s *ExamSessionService) ToggleFlag(id uuid.UUID, userID string, index int) (*SessionView, error) {
	return s.mutate(id, userID, func(e *exam.Session) error { _, err := e.ToggleFlag(index); return err })
}

func (s *ExamSessionService) ToggleImportant(id uuid.UUID, userID string, index int) (*SessionView, error) {
	return s.mutate(id, userID, func(e *exam.Session) error { _, err := e.ToggleImportant(index); return err })
}

func (s *ExamSessionService) GoTo(id uuid.UUID, userID string, index int) (*SessionView, error) {
	return s.mutate(id, userID, func(e *exam.Session) error { return e.GoTo(index) })
}

func (s *ExamSessionService) Next(id uuid.UUID, userID string) (*SessionView, error) {
	return s.mutate(id, userID, func(e *exam.Session) error { return e.Next() })
}

func (s *ExamSessionService) Previous(id uuid.UUID, userID string) (*SessionView, error) {
	return s.mutate(id, userID, func(e *exam.Session) error { return e.Previous() })
}

func (s *ExamSessionService) Randomize(id uuid.UUID, userID string) (*SessionView, error) {
	return s.mutate(id, userID, func(e *exam.Session) error { return e.Randomize() })
}

// Submit grades the session and returns the result immediately; persistence
// continues in the background and is reported through the view and events.
func (s *ExamSessionService) Submit(id uuid.UUID, userID string) (*model.ExamResult, *SessionView, error) {
	as, err := s.lookup(id, userID)
	if err != nil {
		return nil, nil, err
	}
	result, err := as.session.Submit()
	if err != nil {
		return nil, nil, err
	}
	return &result, s.view(as), nil
}

// onSubmit runs for explicit and timer-forced submissions alike.
func (s *ExamSessionService) onSubmit(as *activeSession, result model.ExamResult) {
	id := as.session.ID()

	as.mu.Lock()
	as.stopLocked()
	as.outcome = &PersistOutcome{ResultID: result.ID, Status: PersistPending}
	as.finished = s.now()
	as.mu.Unlock()

	s.log.Info().
		Str("session_id", id.String()).
		Int("correct", result.Correct).
		Int("total", result.Total).
		Int("percentage", result.Percentage).
		Bool("passed", result.Passed).
		Msg("Exam session submitted")

	r := result
	s.events.publish(id, SessionEvent{Type: EventSubmitted, SessionID: id.String(), Result: &r})

	persist := func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		out := s.results.Persist(ctx, result)
		as.mu.Lock()
		as.outcome = &out
		as.mu.Unlock()

		if out.Status == PersistFailed {
			s.log.Error().Str("session_id", id.String()).Str("result_id", result.ID).Msg("Result persistence failed")
		}
		s.events.publish(id, SessionEvent{Type: EventPersisted, SessionID: id.String(), Persistence: &out})
	}

	// Add must not race Shutdown's Wait; once closed, persist on this goroutine.
	s.mu.RLock()
	closed := s.closed
	if !closed {
		s.persists.Add(1)
	}
	s.mu.RUnlock()

	if closed {
		persist()
		return
	}
	go func() {
		defer s.persists.Done()
		persist()
	}()
}

// Get returns the current view of a session.
func (s *ExamSessionService) Get(id uuid.UUID, userID string) (*SessionView, error) {
	as, err := s.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	return s.view(as), nil
}

// Indices returns the question indices matching filter in question order.
func (s *ExamSessionService) Indices(id uuid.UUID, userID string, filter exam.Filter) ([]int, error) {
	as, err := s.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	return as.session.Indices(filter), nil
}

// Navigation returns the cursor and the first unanswered/flagged targets.
func (s *ExamSessionService) Navigation(id uuid.UUID, userID string) (*Navigation, error) {
	as, err := s.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	st := as.session.Snapshot()
	nav := &Navigation{CurrentIndex: st.CurrentIndex, Total: st.Total}
	if i, ok := as.session.FirstUnanswered(); ok {
		nav.FirstUnanswered = &i
	}
	if i, ok := as.session.FirstFlagged(); ok {
		nav.FirstFlagged = &i
	}
	return nav, nil
}

// Subscribe streams events of a session until the returned func is called or
// the session is removed.
func (s *ExamSessionService) Subscribe(id uuid.UUID, userID string) (<-chan SessionEvent, func(), error) {
	if _, err := s.lookup(id, userID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.events.subscribe(id)

	// A removal between lookup and subscribe already closed the session's
	// streams and would never close this one.
	s.mu.RLock()
	_, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		cancel()
		return nil, nil, ErrSessionNotFound
	}
	return ch, cancel, nil
}

// Abandon stops the countdown and forgets the session without scoring it.
func (s *ExamSessionService) Abandon(id uuid.UUID, userID string) error {
	as, err := s.lookup(id, userID)
	if err != nil {
		return err
	}
	s.remove(id, as)
	s.events.publish(id, SessionEvent{Type: EventAbandoned, SessionID: id.String()})
	s.events.closeSession(id)
	s.log.Info().Str("session_id", id.String()).Msg("Exam session abandoned")
	return nil
}

func (s *ExamSessionService) remove(id uuid.UUID, as *activeSession) {
	as.mu.Lock()
	as.stopLocked()
	as.mu.Unlock()

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Sweep drops sessions idle for longer than the retention period. Running
// sessions are kept until their countdown submits them.
func (s *ExamSessionService) Sweep() int {
	cutoff := s.now().Add(-s.retention)

	s.mu.RLock()
	var stale []uuid.UUID
	for id, as := range s.sessions {
		as.mu.Lock()
		idle := as.touched.Before(cutoff)
		as.mu.Unlock()
		if idle && as.session.Status() != exam.StatusRunning {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range stale {
		s.mu.RLock()
		as := s.sessions[id]
		s.mu.RUnlock()
		if as != nil {
			s.remove(id, as)
			s.events.closeSession(id)
		}
	}
	if len(stale) > 0 {
		s.log.Debug().Int("removed", len(stale)).Msg("Swept idle exam sessions")
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *ExamSessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Active reports how many sessions are registered.
func (s *ExamSessionService) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown stops every countdown and waits for in-flight persistence.
func (s *ExamSessionService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.persists.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for result persistence: %w", ctx.Err())
	}
}
