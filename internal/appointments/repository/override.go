package repository

import (
	"context"
	"fmt"

	"sentinel/pkg/config"
	"sentinel/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type OverrideRepository interface {
	FindRange(ctx context.Context, fromDay, toDay string) (map[string]*model.AvailabilityOverride, error)
}

type mongoOverrideRepository struct {
	collection *mongo.Collection
}

func NewMongoOverrideRepository(cfg *config.Config) OverrideRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoOverrideRepository{
		collection: db.Collection("Availability_overrides"),
	}
}

// FindRange loads every override between fromDay and toDay inclusive, keyed
// by day. Day keys sort lexicographically, so a plain range filter works.
func (r *mongoOverrideRepository) FindRange(ctx context.Context, fromDay, toDay string) (map[string]*model.AvailabilityOverride, error) {
	filter := bson.M{
		"_id": bson.M{"$gte": fromDay, "$lte": toDay},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find availability overrides: %w", err)
	}
	defer cursor.Close(ctx)

	var overrides []*model.AvailabilityOverride
	if err = cursor.All(ctx, &overrides); err != nil {
		return nil, fmt.Errorf("failed to decode availability overrides: %w", err)
	}

	byDay := make(map[string]*model.AvailabilityOverride, len(overrides))
	for _, override := range overrides {
		byDay[override.Date] = override
	}

	return byDay, nil
}
