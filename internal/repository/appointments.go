package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medical-office-server/internal/models"
)

// AppointmentRepository reads and writes appointments.
type AppointmentRepository struct {
	db *gorm.DB
}

// NewAppointmentRepository creates a repository over db.
func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(appointment).Error; err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	var appointment models.Appointment
	err := r.db.WithContext(ctx).First(&appointment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read appointment: %w", err)
	}
	return &appointment, nil
}

// ListForActor returns the appointments visible to actor: all of them for an
// admin, otherwise those where the actor is the doctor or the patient.
func (r *AppointmentRepository) ListForActor(ctx context.Context, actor models.Actor) ([]models.Appointment, error) {
	query := r.db.WithContext(ctx).Order("start_time asc")
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleDoctor:
		query = query.Where("doctor_id = ?", actor.ID)
	case models.RolePatient:
		query = query.Where("patient_id = ?", actor.ID)
	default:
		return nil, fmt.Errorf("unknown role %q", actor.Role)
	}

	var appointments []models.Appointment
	if err := query.Find(&appointments).Error; err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// Update loads the appointment under a row lock, passes the persisted state to
// mutate and saves the result in the same transaction. An error from mutate
// rolls back without writing anything.
func (r *AppointmentRepository) Update(
	ctx context.Context,
	id string,
	mutate func(current models.Appointment) (models.Appointment, error),
) (*models.Appointment, error) {
	var updated models.Appointment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Appointment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, "id = ?", id).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read appointment: %w", err)
		}

		updated, err = mutate(current)
		if err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Save(&updated).Error; err != nil {
			return fmt.Errorf("failed to update appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
