package exam

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itilprep/itil-exam-backend/internal/model"
)

func makePool(n int) []model.Question {
	pool := make([]model.Question, n)
	for i := range pool {
		id := i + 1
		pool[i] = model.Question{
			ID:            id,
			Prompt:        fmt.Sprintf("Question %d", id),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: id % 4,
			Category:      "General Concepts",
			Explanation:   "because",
		}
	}
	return pool
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSession(t *testing.T, poolSize int, opts ...Option) *Session {
	t.Helper()
	base := []Option{WithRand(rand.New(rand.NewPCG(1, 2)))}
	s, err := NewSession(makePool(poolSize), DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func startedSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s := newTestSession(t, 487, opts...)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

// answerCorrectly answers the first n questions correctly and the rest wrong.
func answerCorrectly(t *testing.T, s *Session, n int) {
	t.Helper()
	for i, q := range s.questions {
		opt := q.CorrectAnswer
		if i >= n {
			opt = (q.CorrectAnswer + 1) % len(q.Options)
		}
		if err := s.SelectAnswer(i, opt); err != nil {
			t.Fatalf("SelectAnswer(%d): %v", i, err)
		}
	}
}

func TestNewSessionSamplesDistinctQuestions(t *testing.T) {
	pool := makePool(487)
	s, err := NewSession(pool, DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if len(s.questions) != DefaultQuestionCount {
		t.Fatalf("expected %d questions, got %d", DefaultQuestionCount, len(s.questions))
	}
	seen := make(map[int]bool)
	for _, q := range s.questions {
		if seen[q.ID] {
			t.Fatalf("duplicate question id %d", q.ID)
		}
		seen[q.ID] = true
		if q.ID < 1 || q.ID > len(pool) {
			t.Fatalf("question id %d not from pool", q.ID)
		}
	}
	if s.Status() != StatusNotStarted {
		t.Fatalf("expected NOT_STARTED, got %s", s.Status())
	}
	if s.Remaining() != DefaultTimeBudgetSeconds {
		t.Fatalf("expected %d seconds, got %d", DefaultTimeBudgetSeconds, s.Remaining())
	}
}

func TestNewSessionSmallPoolUsesEveryQuestion(t *testing.T) {
	s := newTestSession(t, 12)
	if len(s.questions) != 12 {
		t.Fatalf("expected 12 questions, got %d", len(s.questions))
	}
}

func TestNewSessionRejectsEmptyPool(t *testing.T) {
	if _, err := NewSession(nil, DefaultConfig()); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestNewSessionRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeBudgetSeconds = 0
	if _, err := NewSession(makePool(5), cfg); err == nil {
		t.Fatal("expected config error")
	}
}

func TestMutationsBeforeStartAreRejected(t *testing.T) {
	s := newTestSession(t, 50)

	if err := s.SelectAnswer(0, 1); !errors.Is(err, ErrSessionNotRunning) {
		t.Fatalf("SelectAnswer: expected ErrSessionNotRunning, got %v", err)
	}
	if _, err := s.ToggleFlag(0); !errors.Is(err, ErrSessionNotRunning) {
		t.Fatalf("ToggleFlag: expected ErrSessionNotRunning, got %v", err)
	}
	if err := s.GoTo(1); !errors.Is(err, ErrSessionNotRunning) {
		t.Fatalf("GoTo: expected ErrSessionNotRunning, got %v", err)
	}
	if _, err := s.Submit(); !errors.Is(err, ErrSessionNotRunning) {
		t.Fatalf("Submit: expected ErrSessionNotRunning, got %v", err)
	}
	if _, submitted := s.Tick(); submitted || s.Remaining() != DefaultTimeBudgetSeconds {
		t.Fatal("Tick before start must be a no-op")
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	s := startedSession(t)
	if err := s.Start(); !errors.Is(err, ErrSessionAlreadyStarted) {
		t.Fatalf("expected ErrSessionAlreadyStarted, got %v", err)
	}
}

func TestReAnswerOverwrites(t *testing.T) {
	s := startedSession(t)
	if err := s.SelectAnswer(3, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectAnswer(3, 2); err != nil {
		t.Fatal(err)
	}
	st := s.Snapshot()
	if st.Answers[3] == nil || *st.Answers[3] != 2 {
		t.Fatalf("expected answer 2, got %v", st.Answers[3])
	}
	if st.Answered != 1 {
		t.Fatalf("expected 1 answered, got %d", st.Answered)
	}
}

func TestOutOfRangeIsRejected(t *testing.T) {
	s := startedSession(t)

	tests := []struct {
		name string
		fn   func() error
		want error
	}{
		{"answer negative index", func() error { return s.SelectAnswer(-1, 0) }, ErrIndexOutOfRange},
		{"answer index past end", func() error { return s.SelectAnswer(40, 0) }, ErrIndexOutOfRange},
		{"answer bad option", func() error { return s.SelectAnswer(0, 4) }, ErrOptionOutOfRange},
		{"answer negative option", func() error { return s.SelectAnswer(0, -1) }, ErrOptionOutOfRange},
		{"goto past end", func() error { return s.GoTo(40) }, ErrIndexOutOfRange},
		{"previous at start", s.Previous, ErrIndexOutOfRange},
		{"flag past end", func() error { _, err := s.ToggleFlag(99); return err }, ErrIndexOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	st := s.Snapshot()
	if st.CurrentIndex != 0 || st.Answered != 0 || len(st.Flagged) != 0 {
		t.Fatalf("rejected calls changed state: %+v", st)
	}
}

func TestNavigation(t *testing.T) {
	s := startedSession(t)
	if err := s.GoTo(39); err != nil {
		t.Fatal(err)
	}
	if err := s.Next(); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("Next at end: expected ErrIndexOutOfRange, got %v", err)
	}
	if err := s.Previous(); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().CurrentIndex; got != 38 {
		t.Fatalf("expected cursor 38, got %d", got)
	}
}

func TestToggleSemantics(t *testing.T) {
	s := startedSession(t)

	on, _ := s.ToggleFlag(5)
	off, _ := s.ToggleFlag(5)
	if !on || off {
		t.Fatalf("flag toggle: got on=%v off=%v", on, off)
	}

	s.ToggleFlag(7)
	s.ToggleImportant(7)
	st := s.Snapshot()
	if len(st.Flagged) != 1 || st.Flagged[0] != 7 {
		t.Fatalf("unexpected flagged set %v", st.Flagged)
	}
	if len(st.Important) != 1 || st.Important[0] != 7 {
		t.Fatalf("unexpected important set %v", st.Important)
	}
}

func TestNavigationHelpers(t *testing.T) {
	s := startedSession(t)

	if i, ok := s.FirstFlagged(); ok || i != -1 {
		t.Fatalf("expected no flagged, got %d", i)
	}
	s.ToggleFlag(12)
	s.ToggleFlag(4)
	if i, ok := s.FirstFlagged(); !ok || i != 4 {
		t.Fatalf("expected first flagged 4, got %d", i)
	}

	s.SelectAnswer(0, 0)
	s.SelectAnswer(1, 0)
	if i, ok := s.FirstUnanswered(); !ok || i != 2 {
		t.Fatalf("expected first unanswered 2, got %d", i)
	}

	answerCorrectly(t, s, 40)
	if _, ok := s.FirstUnanswered(); ok {
		t.Fatal("expected every question answered")
	}
}

func TestIndicesFilters(t *testing.T) {
	s := startedSession(t)
	s.SelectAnswer(1, 0)
	s.SelectAnswer(3, 0)
	s.ToggleFlag(3)
	s.ToggleFlag(8)
	s.ToggleImportant(2)

	cases := map[Filter][]int{
		FilterAnswered:  {1, 3},
		FilterFlagged:   {3, 8},
		FilterImportant: {2},
	}
	for f, want := range cases {
		got := s.Indices(f)
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("%s: expected %v, got %v", f, want, got)
		}
	}
	if n := len(s.Indices(FilterAll)); n != 40 {
		t.Errorf("all: expected 40, got %d", n)
	}
	un := s.Indices(FilterUnanswered)
	if len(un) != 38 || un[0] != 0 || un[1] != 2 {
		t.Errorf("unanswered: unexpected %v", un)
	}
}

func TestParseFilter(t *testing.T) {
	if f, err := ParseFilter(""); err != nil || f != FilterAll {
		t.Fatalf("empty: got %q, %v", f, err)
	}
	if f, err := ParseFilter("flagged"); err != nil || f != FilterFlagged {
		t.Fatalf("flagged: got %q, %v", f, err)
	}
	if _, err := ParseFilter("bogus"); err == nil {
		t.Fatal("expected error for unknown filter")
	}
}

func TestRandomizeKeepsSetAndTimer(t *testing.T) {
	s := startedSession(t)
	before := make(map[int]bool)
	for _, q := range s.questions {
		before[q.ID] = true
	}

	s.SelectAnswer(0, 1)
	s.ToggleFlag(2)
	s.ToggleImportant(3)
	s.GoTo(10)
	s.Tick()
	s.Tick()

	if err := s.Randomize(); err != nil {
		t.Fatalf("Randomize: %v", err)
	}

	st := s.Snapshot()
	if st.Answered != 0 || len(st.Flagged) != 0 || len(st.Important) != 0 {
		t.Fatalf("expected cleared marks, got %+v", st)
	}
	if st.CurrentIndex != 0 {
		t.Fatalf("expected cursor reset, got %d", st.CurrentIndex)
	}
	if st.Remaining != DefaultTimeBudgetSeconds-2 {
		t.Fatalf("expected timer untouched, got %d", st.Remaining)
	}
	if st.Status != StatusRunning {
		t.Fatalf("expected RUNNING, got %s", st.Status)
	}
	for _, q := range s.questions {
		if !before[q.ID] {
			t.Fatalf("question %d was not in the original set", q.ID)
		}
	}
	if len(s.questions) != len(before) {
		t.Fatalf("set size changed: %d", len(s.questions))
	}
}

func TestSubmitWithNoAnswers(t *testing.T) {
	s := startedSession(t)
	res, err := s.Submit()
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Correct != 0 || res.Percentage != 0 || res.Passed {
		t.Fatalf("unexpected score %+v", res)
	}
	if len(res.QuestionResults) != 40 {
		t.Fatalf("expected 40 question results, got %d", len(res.QuestionResults))
	}
	for i, qr := range res.QuestionResults {
		if qr.SelectedAnswer != nil || qr.IsCorrect {
			t.Fatalf("question %d should be unanswered", i)
		}
	}
}

func TestSubmitAllCorrect(t *testing.T) {
	s := startedSession(t)
	answerCorrectly(t, s, 40)
	res, _ := s.Submit()
	if res.Correct != 40 || res.Percentage != 100 || !res.Passed {
		t.Fatalf("unexpected score %+v", res)
	}
}

func TestPassBoundary(t *testing.T) {
	tests := []struct {
		correct int
		pct     int
		passed  bool
	}{
		{26, 65, true},
		{25, 63, false},
		{0, 0, false},
		{40, 100, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_40", tt.correct), func(t *testing.T) {
			s := startedSession(t)
			answerCorrectly(t, s, tt.correct)
			res, err := s.Submit()
			if err != nil {
				t.Fatal(err)
			}
			if res.Correct != tt.correct || res.Percentage != tt.pct || res.Passed != tt.passed {
				t.Fatalf("expected %d/%d%%/%v, got %+v", tt.correct, tt.pct, tt.passed, res)
			}
		})
	}
}

func TestPercentageRounding(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{1, 8, 13},  // 12.5 rounds up
		{1, 3, 33},  // 33.3
		{2, 3, 67},  // 66.7
		{13, 20, 65},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := Percentage(tt.correct, tt.total); got != tt.want {
			t.Errorf("Percentage(%d,%d) = %d, want %d", tt.correct, tt.total, got, tt.want)
		}
	}
}

func TestGradeCustomThreshold(t *testing.T) {
	qs := makePool(4)
	answers := []int{qs[0].CorrectAnswer, qs[1].CorrectAnswer, NoAnswer, NoAnswer}
	sc := Grade(qs, answers, 50)
	if sc.Correct != 2 || sc.Percentage != 50 || !sc.Passed {
		t.Fatalf("unexpected %+v", sc)
	}
	if Grade(qs, answers, 51).Passed {
		t.Fatal("expected fail at threshold 51")
	}
}

func TestFlagAndImportantCounts(t *testing.T) {
	s := startedSession(t)
	s.ToggleFlag(3)
	s.ToggleFlag(7)
	s.ToggleImportant(7)

	res, _ := s.Submit()
	if res.FlaggedCount != 2 || res.ImportantCount != 1 {
		t.Fatalf("expected 2 flagged and 1 important, got %d/%d", res.FlaggedCount, res.ImportantCount)
	}
	qr := res.QuestionResults[7]
	if !qr.IsFlagged || !qr.IsImportant {
		t.Fatalf("question 7 should be flagged and important: %+v", qr)
	}
	if !res.QuestionResults[3].IsFlagged || res.QuestionResults[3].IsImportant {
		t.Fatalf("question 3 should only be flagged: %+v", res.QuestionResults[3])
	}
}

func TestSubmittedSessionIsFrozen(t *testing.T) {
	s := startedSession(t)
	s.SelectAnswer(0, s.questions[0].CorrectAnswer)
	res, _ := s.Submit()

	if err := s.SelectAnswer(1, 0); !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("SelectAnswer: expected ErrSessionSubmitted, got %v", err)
	}
	if _, err := s.ToggleFlag(1); !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("ToggleFlag: expected ErrSessionSubmitted, got %v", err)
	}
	if _, err := s.ToggleImportant(1); !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("ToggleImportant: expected ErrSessionSubmitted, got %v", err)
	}
	if err := s.GoTo(2); !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("GoTo: expected ErrSessionSubmitted, got %v", err)
	}
	if err := s.Randomize(); !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("Randomize: expected ErrSessionSubmitted, got %v", err)
	}
	if _, err := s.Submit(); !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("Submit: expected ErrSessionSubmitted, got %v", err)
	}
	if !IsInvalidTransition(ErrSessionSubmitted) {
		t.Fatal("ErrSessionSubmitted should be an invalid transition")
	}

	frozen, ok := s.Result()
	if !ok {
		t.Fatal("expected stored result")
	}
	if frozen.Correct != res.Correct || frozen.FlaggedCount != 0 || frozen.ID != res.ID {
		t.Fatalf("result changed after submit: %+v", frozen)
	}
}

func TestTickForcesSubmit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeBudgetSeconds = 1

	var hooked []string
	s, err := NewSession(makePool(60), cfg,
		WithRand(rand.New(rand.NewPCG(3, 4))),
		WithSubmitHook(func(r model.ExamResult) { hooked = append(hooked, r.ID) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	s.SelectAnswer(0, s.questions[0].CorrectAnswer)

	res, submitted := s.Tick()
	if !submitted {
		t.Fatal("expected tick to submit")
	}
	if s.Status() != StatusSubmitted || s.Remaining() != 0 {
		t.Fatalf("expected SUBMITTED with 0 remaining, got %s/%d", s.Status(), s.Remaining())
	}
	if res.Correct != 1 || len(res.QuestionResults) != 40 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(hooked) != 1 || hooked[0] != res.ID {
		t.Fatalf("hook should fire once with the result, got %v", hooked)
	}

	if _, again := s.Tick(); again {
		t.Fatal("stale tick must not submit twice")
	}
	if len(hooked) != 1 {
		t.Fatalf("hook fired %d times", len(hooked))
	}
}

func TestTimeSpentUsesStartTime(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	s := newTestSession(t, 100, WithClock(clock.Now), WithUser("user-1"))

	clock.Advance(5 * time.Minute) // reading the intro does not count
	s.Start()
	clock.Advance(90 * time.Second)

	res, err := s.Submit()
	if err != nil {
		t.Fatal(err)
	}
	if res.TimeSpent != 90 {
		t.Fatalf("expected 90s spent, got %d", res.TimeSpent)
	}
	if res.UserID != "user-1" || res.SessionID != s.ID().String() {
		t.Fatalf("unexpected ownership %q/%q", res.UserID, res.SessionID)
	}
	if !res.Date.Equal(clock.Now()) {
		t.Fatalf("expected date %v, got %v", clock.Now(), res.Date)
	}
}

func TestSnapshotHidesAnswerKey(t *testing.T) {
	s := startedSession(t)
	st := s.Snapshot()
	if st.Result != nil {
		t.Fatal("result should be absent before submit")
	}
	if len(st.Questions) != 40 || st.Questions[0].Prompt == "" {
		t.Fatalf("unexpected questions %+v", st.Questions)
	}
	if st.StartedAt == nil {
		t.Fatal("expected start time")
	}
}

func TestCountdownStopsOnCancel(t *testing.T) {
	s := startedSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Countdown(ctx, s, time.Millisecond, nil)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown did not stop after cancel")
	}
	if s.Status() != StatusRunning {
		t.Fatalf("cancel must not submit, got %s", s.Status())
	}
	if s.Remaining() >= DefaultTimeBudgetSeconds {
		t.Fatal("expected at least one tick")
	}
}

func TestCountdownSubmitsAtZero(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeBudgetSeconds = 3
	submitted := make(chan model.ExamResult, 1)
	s, err := NewSession(makePool(45), cfg, WithSubmitHook(func(r model.ExamResult) { submitted <- r }))
	if err != nil {
		t.Fatal(err)
	}
	s.Start()

	var ticks atomic.Int32
	go Countdown(context.Background(), s, time.Millisecond, func(int) { ticks.Add(1) })

	select {
	case r := <-submitted:
		if r.Total != 40 {
			t.Fatalf("expected 40 questions, got %d", r.Total)
		}
		if n := ticks.Load(); n != 2 {
			t.Fatalf("expected 2 non-final ticks, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not submit")
	}
}

func TestGradeUploadRecomputesScore(t *testing.T) {
	one, two := 1, 2
	req := model.SaveResultRequest{
		Date:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		TimeSpent: 120,
		QuestionResults: []model.QuestionResultRequest{
			{QuestionID: 1, Question: "q1", Options: []string{"a", "b", "c"}, SelectedAnswer: &one, CorrectAnswer: &one, IsFlagged: true},
			{QuestionID: 2, Question: "q2", Options: []string{"a", "b", "c"}, SelectedAnswer: &one, CorrectAnswer: &two, IsImportant: true},
			{QuestionID: 3, Question: "q3", Options: []string{"a", "b", "c"}, CorrectAnswer: &two},
		},
	}
	res, err := GradeUpload(req, 65)
	if err != nil {
		t.Fatal(err)
	}
	if res.Correct != 1 || res.Percentage != 33 || res.Passed {
		t.Fatalf("unexpected score %+v", res)
	}
	if res.FlaggedCount != 1 || res.ImportantCount != 1 || res.TimeSpent != 120 {
		t.Fatalf("unexpected counts %+v", res)
	}

	for _, bad := range []int{5, 3, -1} {
		answer := bad
		req.QuestionResults[0].CorrectAnswer = &answer
		if _, err := GradeUpload(req, 65); !errors.Is(err, ErrOptionOutOfRange) {
			t.Fatalf("correct answer %d: expected ErrOptionOutOfRange, got %v", bad, err)
		}
	}

	req.QuestionResults[0].CorrectAnswer = &one
	negative := -2
	req.QuestionResults[2].SelectedAnswer = &negative
	if _, err := GradeUpload(req, 65); !errors.Is(err, ErrOptionOutOfRange) {
		t.Fatalf("negative selection: expected ErrOptionOutOfRange, got %v", err)
	}
}
