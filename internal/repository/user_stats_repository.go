package repository

import (
	"context"
	"errors"
	"time"

	"github.com/itilprep/itil-exam-backend/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserStatsRepository keeps per-user exam totals in the "user_stats" collection.
type UserStatsRepository struct {
	stats *mongo.Collection
}

func NewUserStatsRepository(db *mongo.Database) *UserStatsRepository {
	return &UserStatsRepository{stats: db.Collection("user_stats")}
}

// RecordExam increments exams_taken and raises best_score to percentage if higher.
func (r *UserStatsRepository) RecordExam(ctx context.Context, userID string, percentage int, at time.Time) error {
	update := bson.M{
		"$inc": bson.M{"exams_taken": 1},
		"$max": bson.M{"best_score": percentage, "last_exam_at": at},
	}
	_, err := r.stats.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	return err
}

func (r *UserStatsRepository) Get(ctx context.Context, userID string) (*model.UserStats, error) {
	var stats model.UserStats
	err := r.stats.FindOne(ctx, bson.M{"_id": userID}).Decode(&stats)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
