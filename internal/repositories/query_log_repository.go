package repositories

import (
	"context"
	"querypilot-ai/internal/models"
	"querypilot-ai/pkg/mongodb"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type QueryLogRepository interface {
	Create(ctx context.Context, log *models.QueryLog) error
	FindByRequestID(ctx context.Context, requestID string) (*models.QueryLog, error)
	FindRecent(ctx context.Context, page, pageSize int) ([]*models.QueryLog, int64, error)
}

type queryLogRepository struct {
	collection *mongo.Collection
}

func NewQueryLogRepository(mongoClient *mongodb.MongoDBClient) QueryLogRepository {
	return &queryLogRepository{
		collection: mongoClient.GetCollectionByName("query_logs"),
	}
}

func (r *queryLogRepository) Create(ctx context.Context, log *models.QueryLog) error {
	_, err := r.collection.InsertOne(ctx, log)
	return err
}

func (r *queryLogRepository) FindByRequestID(ctx context.Context, requestID string) (*models.QueryLog, error) {
	var log models.QueryLog
	err := r.collection.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&log)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

func (r *queryLogRepository) FindRecent(ctx context.Context, page, pageSize int) ([]*models.QueryLog, int64, error) {
	var logs []*models.QueryLog
	filter := bson.M{}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, &logs); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
