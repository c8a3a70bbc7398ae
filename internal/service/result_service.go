package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itilprep/itil-exam-backend/internal/exam"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/itilprep/itil-exam-backend/internal/repository"
	"github.com/rs/zerolog"
)

// ErrResultNotFound is returned when neither store holds the result.
var ErrResultNotFound = errors.New("result not found")

// ResultStore is implemented by both the document store and the local fallback.
type ResultStore interface {
	Save(ctx context.Context, result *model.ExamResult) error
	List(ctx context.Context, userID string) ([]model.ExamResult, error)
	Get(ctx context.Context, id string) (*model.ExamResult, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

// UserStatsStore tracks exams taken and best score per user.
type UserStatsStore interface {
	RecordExam(ctx context.Context, userID string, percentage int, at time.Time) error
	Get(ctx context.Context, userID string) (*model.UserStats, error)
}

// ResyncEnqueuer parks a fallback result id for the resync worker.
type ResyncEnqueuer interface {
	Enqueue(ctx context.Context, resultID string) error
}

// PersistStatus is the outcome of handing a result to persistence.
type PersistStatus string

const (
	PersistPending  PersistStatus = "pending"
	PersistSaved    PersistStatus = "saved"
	PersistFallback PersistStatus = "fallback"
	PersistFailed   PersistStatus = "failed"
)

// PersistOutcome is shown next to a result. Warning is set for fallback and failed.
type PersistOutcome struct {
	ResultID string        `json:"result_id"`
	Status   PersistStatus `json:"status"`
	Warning  string        `json:"warning,omitempty"`
}

// Timeouts of the two persistence legs. The primary is bounded below the
// driver's server selection timeout so an unreachable store still leaves the
// fallback time to run, and the fallback runs on a fresh context because the
// caller's may already be spent.
const (
	primaryWriteTimeout  = 8 * time.Second
	fallbackWriteTimeout = 5 * time.Second
)

const (
	warnFallback = "Your result was saved on this server only and will be synced to your history shortly."
	warnFailed   = "Your result could not be saved. It is still shown here, but it will not appear in your history."
)

// ResultService persists exam results to the document store with a local
// fallback, and reads them back for history and progress.
type ResultService struct {
	primary       ResultStore
	fallback      ResultStore
	stats         UserStatsStore
	queue         ResyncEnqueuer
	passThreshold int
	log           zerolog.Logger
}

// NewResultService creates a new ResultService. stats and queue may be nil.
func NewResultService(primary, fallback ResultStore, stats UserStatsStore, queue ResyncEnqueuer, passThreshold int, log zerolog.Logger) *ResultService {
	return &ResultService{
		primary:       primary,
		fallback:      fallback,
		stats:         stats,
		queue:         queue,
		passThreshold: passThreshold,
		log:           log.With().Str("component", "result_service").Logger(),
	}
}

// Persist never loses a result: a primary failure is absorbed by the fallback
// store, and only a failure of both is reported as PersistFailed.
func (s *ResultService) Persist(ctx context.Context, result model.ExamResult) PersistOutcome {
	out := PersistOutcome{ResultID: result.ID}

	pctx, pcancel := context.WithTimeout(ctx, primaryWriteTimeout)
	err := s.primary.Save(pctx, &result)
	pcancel()
	if err == nil {
		s.recordStats(ctx, result)
		out.Status = PersistSaved
		return out
	}
	s.log.Warn().Err(err).Str("result_id", result.ID).Msg("Primary result store failed, writing fallback")

	if s.fallback == nil {
		s.log.Error().Str("result_id", result.ID).Msg("No fallback store configured, result not persisted")
		out.Status, out.Warning = PersistFailed, warnFailed
		return out
	}
	fctx, fcancel := context.WithTimeout(context.WithoutCancel(ctx), fallbackWriteTimeout)
	defer fcancel()
	if ferr := s.fallback.Save(fctx, &result); ferr != nil {
		s.log.Error().Err(ferr).Str("result_id", result.ID).Msg("Fallback result store failed, result not persisted")
		out.Status, out.Warning = PersistFailed, warnFailed
		return out
	}

	if s.queue != nil {
		if qerr := s.queue.Enqueue(fctx, result.ID); qerr != nil {
			s.log.Warn().Err(qerr).Str("result_id", result.ID).Msg("Resync enqueue failed, result stays in fallback until requeued")
		}
	}
	out.Status, out.Warning = PersistFallback, warnFallback
	return out
}

func (s *ResultService) recordStats(ctx context.Context, result model.ExamResult) {
	if s.stats == nil || result.UserID == "" {
		return
	}
	if err := s.stats.RecordExam(ctx, result.UserID, result.Percentage, result.CreatedAt); err != nil {
		s.log.Warn().Err(err).Str("user_id", result.UserID).Msg("User stats update failed")
	}
}

// Resync copies one fallback result to the primary store and removes it
// locally. A result already gone from the fallback is treated as done.
func (s *ResultService) Resync(ctx context.Context, resultID string) error {
	result, err := s.fallback.Get(ctx, resultID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read fallback result: %w", err)
	}
	if err := s.primary.Save(ctx, result); err != nil {
		return fmt.Errorf("save primary result: %w", err)
	}
	s.recordStats(ctx, *result)
	if err := s.fallback.Delete(ctx, resultID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("delete fallback result: %w", err)
	}
	return nil
}

// SaveUpload grades a client-submitted result server-side and persists it.
func (s *ResultService) SaveUpload(ctx context.Context, userID string, req model.SaveResultRequest) (*model.ExamResult, PersistOutcome, error) {
	result, err := exam.GradeUpload(req, s.passThreshold)
	if err != nil {
		return nil, PersistOutcome{}, err
	}
	result.UserID = userID
	out := s.Persist(ctx, result)
	return &result, out, nil
}

// ListResults returns results newest first from the primary store; an error
// or an empty list there falls back to the local store.
func (s *ResultService) ListResults(ctx context.Context, userID string) ([]model.ExamResult, error) {
	results, err := s.primary.List(ctx, userID)
	if err == nil && len(results) > 0 {
		return results, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("Primary result list failed, reading fallback")
	}
	if s.fallback == nil {
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}
		return []model.ExamResult{}, nil
	}

	local, ferr := s.fallback.List(ctx, userID)
	if ferr != nil {
		if err != nil {
			return nil, fmt.Errorf("list results: %w", errors.Join(err, ferr))
		}
		s.log.Warn().Err(ferr).Msg("Fallback result list failed")
		return []model.ExamResult{}, nil
	}
	if local == nil {
		local = []model.ExamResult{}
	}
	return local, nil
}

// GetResult looks in the primary store, then the fallback.
func (s *ResultService) GetResult(ctx context.Context, id string) (*model.ExamResult, error) {
	result, err := s.primary.Get(ctx, id)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.log.Warn().Err(err).Str("result_id", id).Msg("Primary result lookup failed, reading fallback")
	}
	if s.fallback != nil {
		if local, ferr := s.fallback.Get(ctx, id); ferr == nil {
			return local, nil
		}
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrResultNotFound
	}
	return nil, fmt.Errorf("get result: %w", err)
}

// DeleteResult removes the result from both stores.
func (s *ResultService) DeleteResult(ctx context.Context, id string) error {
	found := false
	perr := s.primary.Delete(ctx, id)
	if perr == nil {
		found = true
	} else if !errors.Is(perr, repository.ErrNotFound) {
		return fmt.Errorf("delete result: %w", perr)
	}
	if s.fallback != nil {
		ferr := s.fallback.Delete(ctx, id)
		if ferr == nil {
			found = true
		} else if !errors.Is(ferr, repository.ErrNotFound) {
			return fmt.Errorf("delete fallback result: %w", ferr)
		}
	}
	if !found {
		return ErrResultNotFound
	}
	return nil
}

// DeleteAllResults removes every result of userID from both stores
// (every result when userID is empty) and returns how many were deleted.
func (s *ResultService) DeleteAllResults(ctx context.Context, userID string) (int64, error) {
	n, err := s.primary.DeleteAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	if s.fallback != nil {
		m, err := s.fallback.DeleteAll(ctx, userID)
		if err != nil {
			return n, fmt.Errorf("delete fallback results: %w", err)
		}
		n += m
	}
	return n, nil
}

// UserStats returns the totals kept for userID.
func (s *ResultService) UserStats(ctx context.Context, userID string) (*model.UserStats, error) {
	if s.stats == nil {
		return nil, ErrResultNotFound
	}
	stats, err := s.stats.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrResultNotFound
	}
	return stats, err
}
