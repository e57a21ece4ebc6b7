package repository

import (
	"context"
	"fmt"
	"time"

	appterrors "sentinel/internal/appointments/errors"
	"sentinel/pkg/config"
	"sentinel/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SlotClaimRepository holds one document per claimed slot-grid cell. The
// unique _id is the exclusion guarantee: two active appointments can never
// claim the same cell.
type SlotClaimRepository interface {
	Claim(ctx context.Context, appointmentID string, cells []string) error
	ReleaseByAppointment(ctx context.Context, appointmentID string) error
}

type mongoSlotClaimRepository struct {
	collection *mongo.Collection
}

func NewMongoSlotClaimRepository(cfg *config.Config) SlotClaimRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotClaimRepository{
		collection: db.Collection("Slot_claims"),
	}
}

// Claim inserts one claim per cell. A duplicate key means another active
// appointment already holds a cell in the window; the caller treats that as
// a booking conflict and the surrounding transaction rolls back any claims
// inserted before the collision.
func (r *mongoSlotClaimRepository) Claim(ctx context.Context, appointmentID string, cells []string) error {
	if len(cells) == 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(cells))
	for _, cell := range cells {
		docs = append(docs, &model.SlotClaim{
			Cell:          cell,
			AppointmentID: appointmentID,
			CreatedAt:     now,
		})
	}

	_, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return appterrors.ErrSlotTaken
		}
		return fmt.Errorf("failed to claim slots: %w", err)
	}

	return nil
}

func (r *mongoSlotClaimRepository) ReleaseByAppointment(ctx context.Context, appointmentID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"appointment_id": appointmentID})
	if err != nil {
		return fmt.Errorf("failed to release slot claims: %w", err)
	}
	return nil
}
