package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itilprep/itil-exam-backend/internal/config"
	"github.com/itilprep/itil-exam-backend/internal/exam"
	"github.com/itilprep/itil-exam-backend/internal/handler"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/itilprep/itil-exam-backend/internal/repository"
	"github.com/itilprep/itil-exam-backend/internal/router"
	"github.com/itilprep/itil-exam-backend/internal/service"
	"github.com/itilprep/itil-exam-backend/internal/validator"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// memQuestionStore is an in-memory primary question store.
type memQuestionStore struct {
	mu        sync.Mutex
	questions []model.Question
}

func (m *memQuestionStore) ListAll(_ context.Context) ([]model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Question(nil), m.questions...), nil
}

func (m *memQuestionStore) Create(_ context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 1
	for _, existing := range m.questions {
		next = max(next, existing.ID+1)
	}
	q.ID = next
	m.questions = append(m.questions, *q)
	return nil
}

func (m *memQuestionStore) BulkInsert(_ context.Context, qs []model.Question) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range qs {
		for _, existing := range m.questions {
			if existing.ID == q.ID {
				return 0, repository.ErrDuplicate
			}
		}
	}
	m.questions = append(m.questions, qs...)
	return int64(len(qs)), nil
}

// memResultStore is an in-memory result store.
type memResultStore struct {
	mu      sync.Mutex
	results map[string]model.ExamResult
}

func newMemResultStore() *memResultStore {
	return &memResultStore{results: make(map[string]model.ExamResult)}
}

func (m *memResultStore) Save(_ context.Context, r *model.ExamResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ID] = *r
	return nil
}

func (m *memResultStore) List(_ context.Context, userID string) ([]model.ExamResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExamResult
	for _, r := range m.results {
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memResultStore) Get(_ context.Context, id string) (*model.ExamResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *memResultStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.results, id)
	return nil
}

func (m *memResultStore) DeleteAll(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.results {
		if userID == "" || r.UserID == userID {
			delete(m.results, id)
			n++
		}
	}
	return n, nil
}

type testEnv struct {
	router   *gin.Engine
	auth     *service.AuthService
	sessions *service.ExamSessionService
	results  *memResultStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		GinMode:   gin.TestMode,
		JWTSecret: "handler-test-secret",
		JWTExpiry: time.Hour,
		Exam: exam.Config{
			QuestionCount:        5,
			TimeBudgetSeconds:    exam.DefaultTimeBudgetSeconds,
			PassThresholdPercent: exam.DefaultPassThresholdPercent,
		},
	}
	log := zerolog.Nop()

	auth := service.NewAuthService(cfg)
	questions := service.NewQuestionService(&memQuestionStore{}, repository.NewBundledQuestionSource(nil), nil, log)
	store := newMemResultStore()
	results := service.NewResultService(store, newMemResultStore(), nil, nil, cfg.Exam.PassThresholdPercent, log)
	sessions := service.NewExamSessionService(questions, results, cfg.Exam, time.Hour, log)
	sessions.SetTickInterval(time.Hour)
	t.Cleanup(func() { sessions.Shutdown(context.Background()) })

	handlers := &router.Handlers{
		Question:      handler.NewQuestionHandler(questions),
		Session:       handler.NewSessionHandler(sessions),
		SessionEvents: handler.NewSessionEventsHandler(sessions, log),
		Result:        handler.NewResultHandler(results, service.NewProgressService(results)),
		WS:            handler.NewWSHandler(sessions, log, nil),
		System: handler.NewSystemHandler(map[string]handler.HealthCheck{
			"postgres": func(context.Context) error { return nil },
		}, sessions, nil, log),
	}

	return &testEnv{
		router:   router.SetupRouter(auth, handlers, nil, cfg),
		auth:     auth,
		sessions: sessions,
		results:  store,
	}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.auth.IssueToken(userID, userID+"@example.com")
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	if dst != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			t.Fatalf("decode data: %v (%s)", err, env.Data)
		}
	}
	return env
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
	env := decode(t, w, nil)
	if env.Error == nil || env.Error.Code != code {
		t.Fatalf("expected error code %s, got %s", code, w.Body.String())
	}
}

type sessionData struct {
	Session struct {
		ID          string           `json:"id"`
		Status      exam.Status      `json:"status"`
		Total       int              `json:"total"`
		Current     int              `json:"current_index"`
		Answers     []*int           `json:"answers"`
		Flagged     []int            `json:"flagged"`
		Questions   []map[string]any `json:"questions"`
		Persistence *struct {
			Status string `json:"status"`
		} `json:"persistence"`
	} `json:"session"`
}

func (e *testEnv) createSession(t *testing.T, token string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/v1/sessions", "", token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	var data sessionData
	decode(t, w, &data)
	return data.Session.ID
}
