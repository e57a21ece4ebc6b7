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

// AppointmentLockRepository provides per-appointment advisory locks. A lock
// document keyed by the appointment id serializes cancel, modify and approve
// against each other for the same appointment.
type AppointmentLockRepository interface {
	Acquire(ctx context.Context, appointmentID string) error
	Release(ctx context.Context, appointmentID string) error
}

type mongoAppointmentLockRepository struct {
	collection *mongo.Collection
}

func NewMongoAppointmentLockRepository(cfg *config.Config) AppointmentLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAppointmentLockRepository{
		collection: db.Collection("Appointment_locks"),
	}
}

// Acquire returns ErrLockHeld when another request holds the lock.
func (r *mongoAppointmentLockRepository) Acquire(ctx context.Context, appointmentID string) error {
	lock := &model.AppointmentLock{
		AppointmentID: appointmentID,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return appterrors.ErrLockHeld
		}
		return fmt.Errorf("failed to acquire appointment lock: %w", err)
	}

	return nil
}

func (r *mongoAppointmentLockRepository) Release(ctx context.Context, appointmentID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": appointmentID})
	if err != nil {
		return fmt.Errorf("failed to release appointment lock: %w", err)
	}
	return nil
}
