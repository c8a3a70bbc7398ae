package exam

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itilprep/itil-exam-backend/internal/model"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusRunning    Status = "RUNNING"
	StatusSubmitted  Status = "SUBMITTED"
)

// SubmitHook receives the result once, after the session lock is released.
// It runs on the goroutine that caused the submission (Submit or Tick).
type SubmitHook func(result model.ExamResult)

// Session is one timed exam attempt. All methods are safe for concurrent use;
// mutations, ticks and submission are serialized by a single mutex.
type Session struct {
	mu sync.Mutex

	id     uuid.UUID
	userID string
	cfg    Config

	questions []model.Question
	current   int
	answers   []int
	flagged   map[int]struct{}
	important map[int]struct{}

	status    Status
	remaining int
	createdAt time.Time
	startedAt time.Time
	result    *model.ExamResult

	now      func() time.Time
	rng      *rand.Rand
	onSubmit SubmitHook
}

// Option customizes a new session.
type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithRand makes sampling and shuffling deterministic.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rng = r }
}

// WithUser binds the session (and its result) to a user id.
func WithUser(userID string) Option {
	return func(s *Session) { s.userID = userID }
}

// WithSubmitHook registers a callback fired exactly once on submission.
func WithSubmitHook(h SubmitHook) Option {
	return func(s *Session) { s.onSubmit = h }
}

// NewSession samples min(cfg.QuestionCount, len(pool)) distinct questions
// without replacement and returns a NotStarted session.
func NewSession(pool []model.Question, cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, ErrNoQuestions
	}

	s := &Session{
		id:        uuid.New(),
		cfg:       cfg,
		flagged:   make(map[int]struct{}),
		important: make(map[int]struct{}),
		status:    StatusNotStarted,
		remaining: cfg.TimeBudgetSeconds,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	n := min(cfg.QuestionCount, len(pool))
	perm := s.rng.Perm(len(pool))
	s.questions = make([]model.Question, n)
	for i := 0; i < n; i++ {
		s.questions[i] = pool[perm[i]]
	}
	s.answers = newAnswers(n)
	s.createdAt = s.now()
	return s, nil
}

func newAnswers(n int) []int {
	a := make([]int, n)
	for i := range a {
		a[i] = NoAnswer
	}
	return a
}

func (s *Session) ID() uuid.UUID  { return s.id }
func (s *Session) UserID() string { return s.userID }
func (s *Session) Config() Config { return s.cfg }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Result returns the frozen result once submitted.
func (s *Session) Result() (model.ExamResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return model.ExamResult{}, false
	}
	return *s.result, true
}

// Start moves NotStarted to Running and captures the start time.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusSubmitted:
		return ErrSessionSubmitted
	case StatusRunning:
		return ErrSessionAlreadyStarted
	}
	s.status = StatusRunning
	s.startedAt = s.now()
	return nil
}

// requireRunning checks status and index. Caller holds s.mu.
func (s *Session) requireRunning(index int) error {
	switch s.status {
	case StatusSubmitted:
		return ErrSessionSubmitted
	case StatusNotStarted:
		return ErrSessionNotRunning
	}
	if index < 0 || index >= len(s.questions) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(s.questions))
	}
	return nil
}

// SelectAnswer records option for question index, replacing any prior answer.
func (s *Session) SelectAnswer(index, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRunning(index); err != nil {
		return err
	}
	if n := len(s.questions[index].Options); option < 0 || option >= n {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrOptionOutOfRange, option, n)
	}
	s.answers[index] = option
	return nil
}

// ToggleFlag flips the review flag on index and returns the new membership.
func (s *Session) ToggleFlag(index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRunning(index); err != nil {
		return false, err
	}
	return toggle(s.flagged, index), nil
}

// ToggleImportant flips the important mark on index and returns the new membership.
func (s *Session) ToggleImportant(index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRunning(index); err != nil {
		return false, err
	}
	return toggle(s.important, index), nil
}

func toggle(set map[int]struct{}, index int) bool {
	if _, ok := set[index]; ok {
		delete(set, index)
		return false
	}
	set[index] = struct{}{}
	return true
}

// GoTo moves the cursor. Out-of-range targets are rejected, never clamped.
func (s *Session) GoTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRunning(index); err != nil {
		return err
	}
	s.current = index
	return nil
}

// Next and Previous move the cursor by one and fail at the boundaries.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRunning(s.current + 1); err != nil {
		return err
	}
	s.current++
	return nil
}

func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRunning(s.current - 1); err != nil {
		return err
	}
	s.current--
	return nil
}

// Randomize reshuffles the existing question set in place and clears answers,
// flags and important marks. The cursor returns to 0; the timer is untouched.
func (s *Session) Randomize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusSubmitted {
		return ErrSessionSubmitted
	}
	s.rng.Shuffle(len(s.questions), func(i, j int) {
		s.questions[i], s.questions[j] = s.questions[j], s.questions[i]
	})
	s.answers = newAnswers(len(s.questions))
	clear(s.flagged)
	clear(s.important)
	s.current = 0
	return nil
}

// Tick consumes one second. It is a no-op unless Running. When the budget
// reaches zero the session is submitted in the same call and the result is
// returned with submitted == true.
func (s *Session) Tick() (result model.ExamResult, submitted bool) {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return model.ExamResult{}, false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining > 0 {
		s.mu.Unlock()
		return model.ExamResult{}, false
	}
	result = s.submitLocked()
	hook := s.onSubmit
	s.mu.Unlock()

	if hook != nil {
		hook(result)
	}
	return result, true
}

// Submit grades the session, freezes it and returns the result. Unanswered
// questions score as incorrect. Only a Running session can be submitted.
func (s *Session) Submit() (model.ExamResult, error) {
	s.mu.Lock()
	switch s.status {
	case StatusSubmitted:
		s.mu.Unlock()
		return model.ExamResult{}, ErrSessionSubmitted
	case StatusNotStarted:
		s.mu.Unlock()
		return model.ExamResult{}, ErrSessionNotRunning
	}
	result := s.submitLocked()
	hook := s.onSubmit
	s.mu.Unlock()

	if hook != nil {
		hook(result)
	}
	return result, nil
}

func (s *Session) submitLocked() model.ExamResult {
	r := s.buildResult(s.now())
	s.status = StatusSubmitted
	s.result = &r
	return r
}

// FirstUnanswered returns the lowest unanswered index.
func (s *Session) FirstUnanswered() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.answers {
		if a == NoAnswer {
			return i, true
		}
	}
	return -1, false
}

// FirstFlagged returns the lowest flagged index.
func (s *Session) FirstFlagged() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := -1
	for i := range s.flagged {
		if first == -1 || i < first {
			first = i
		}
	}
	return first, first != -1
}

// Indices returns, in question order, the indices matching f.
func (s *Session) Indices(f Filter) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.questions))
	for i := range s.questions {
		if s.matches(f, i) {
			out = append(out, i)
		}
	}
	return out
}

// State is a read-only copy of the session for display.
type State struct {
	ID           string                       `json:"id"`
	UserID       string                       `json:"user_id,omitempty"`
	Status       Status                       `json:"status"`
	CurrentIndex int                          `json:"current_index"`
	Total        int                          `json:"total"`
	Remaining    int                          `json:"remaining_seconds"`
	Answers      []*int                       `json:"answers"`
	Flagged      []int                        `json:"flagged"`
	Important    []int                        `json:"important"`
	Answered     int                          `json:"answered"`
	CreatedAt    time.Time                    `json:"created_at"`
	StartedAt    *time.Time                   `json:"started_at,omitempty"`
	Questions    []model.QuestionForCandidate `json:"questions"`
	Result       *model.ExamResult            `json:"result,omitempty"`
}

// Snapshot copies the current state. Correct answers are only exposed
// through Result after submission.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:           s.id.String(),
		UserID:       s.userID,
		Status:       s.status,
		CurrentIndex: s.current,
		Total:        len(s.questions),
		Remaining:    s.remaining,
		Answers:      make([]*int, len(s.answers)),
		Flagged:      sortedKeys(s.flagged),
		Important:    sortedKeys(s.important),
		CreatedAt:    s.createdAt,
		Questions:    make([]model.QuestionForCandidate, len(s.questions)),
	}
	for i, a := range s.answers {
		if a != NoAnswer {
			v := a
			st.Answers[i] = &v
			st.Answered++
		}
	}
	for i, q := range s.questions {
		st.Questions[i] = q.ForCandidate()
	}
	if s.status != StatusNotStarted {
		t := s.startedAt
		st.StartedAt = &t
	}
	if s.result != nil {
		r := *s.result
		st.Result = &r
	}
	return st
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
