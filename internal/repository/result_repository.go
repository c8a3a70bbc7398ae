package repository

import (
	"context"
	"errors"

	"github.com/itilprep/itil-exam-backend/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ResultRepository stores exam results in the MongoDB "exam_results" collection.
type ResultRepository struct {
	results *mongo.Collection
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(db *mongo.Database) *ResultRepository {
	return &ResultRepository{results: db.Collection("exam_results")}
}

// EnsureIndexes creates the user/recency index used by List.
func (r *ResultRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.results.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// Save upserts by id so a resync of an already stored result is harmless.
func (r *ResultRepository) Save(ctx context.Context, result *model.ExamResult) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.results.ReplaceOne(ctx, bson.M{"_id": result.ID}, result, opts)
	return err
}

// List returns results newest first. An empty userID lists every result.
func (r *ResultRepository) List(ctx context.Context, userID string) ([]model.ExamResult, error) {
	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.results.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []model.ExamResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *ResultRepository) Get(ctx context.Context, id string) (*model.ExamResult, error) {
	var result model.ExamResult
	err := r.results.FindOne(ctx, bson.M{"_id": id}).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *ResultRepository) Delete(ctx context.Context, id string) error {
	res, err := r.results.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every result for userID (all results when empty).
func (r *ResultRepository) DeleteAll(ctx context.Context, userID string) (int64, error) {
	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}
	res, err := r.results.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
