package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"
	"github.com/jobswipe/proxy-rotator/pkg/database"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	healthChecksCollection = "proxy_health_checks"
	healthCheckRetention   = 30 * 24 * time.Hour
)

// HealthRepository is the durable HealthCheck store.
type HealthRepository struct {
	db     *database.MongoDB
	logger *logrus.Logger
}

func NewHealthRepository(db *database.MongoDB, logger *logrus.Logger) *HealthRepository {
	return &HealthRepository{
		db:     db,
		logger: logger,
	}
}

func (r *HealthRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "proxy_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "success", Value: 1}, {Key: "timestamp", Value: -1}}},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(healthCheckRetention.Seconds())),
		},
	}

	return r.db.CreateIndexes(ctx, healthChecksCollection, indexes)
}

func (r *HealthRepository) SaveHealthCheck(ctx context.Context, check *models.HealthCheck) error {
	if check.Timestamp.IsZero() {
		check.Timestamp = time.Now()
	}

	result, err := r.db.Collection(healthChecksCollection).InsertOne(ctx, check)
	if err != nil {
		return fmt.Errorf("failed to save health check: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		check.ID = oid
	}
	return nil
}

func (r *HealthRepository) GetRecentFailures(ctx context.Context, limit int) ([]models.HealthCheck, error) {
	return r.find(ctx, bson.M{"success": false}, limit)
}

// GetProxyHistory returns the newest checks for one proxy.
func (r *HealthRepository) GetProxyHistory(ctx context.Context, proxyID string, limit int) ([]models.HealthCheck, error) {
	return r.find(ctx, bson.M{"proxy_id": proxyID}, limit)
}

func (r *HealthRepository) find(ctx context.Context, filter bson.M, limit int) ([]models.HealthCheck, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.db.Collection(healthChecksCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query health checks: %w", err)
	}
	defer cursor.Close(ctx)

	checks := []models.HealthCheck{}
	for cursor.Next(ctx) {
		var check models.HealthCheck
		if err := cursor.Decode(&check); err != nil {
			r.logger.WithError(err).Error("Failed to decode health check")
			continue
		}
		checks = append(checks, check)
	}

	return checks, cursor.Err()
}
