package repository

import (
	"context"
	"fmt"
	"time"

	"sentinel/pkg/config"
	"sentinel/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ClientRepository interface {
	Upsert(ctx context.Context, client *model.Client) error
	FindByPhone(ctx context.Context, phone string) (*model.Client, error)
}

type mongoClientRepository struct {
	collection *mongo.Collection
}

func NewMongoClientRepository(cfg *config.Config) ClientRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoClientRepository{
		collection: db.Collection("Clients"),
	}
}

// Upsert refreshes the client's name on every booking. The email is only
// written when the incoming value is set, so an agent omitting it never
// erases a known address.
func (r *mongoClientRepository) Upsert(ctx context.Context, client *model.Client) error {
	now := time.Now().UTC()

	set := bson.M{
		"name":       client.Name,
		"updated_at": now,
	}
	if client.Email != "" {
		set["email"] = client.Email
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": client.PhoneNumber}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert client: %w", err)
	}

	return nil
}

func (r *mongoClientRepository) FindByPhone(ctx context.Context, phone string) (*model.Client, error) {
	var client model.Client
	err := r.collection.FindOne(ctx, bson.M{"_id": phone}).Decode(&client)
	if err != nil {
		return nil, fmt.Errorf("failed to find client: %w", err)
	}
	return &client, nil
}
