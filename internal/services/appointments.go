package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medical-office-server/internal/models"
	"medical-office-server/internal/repository"
	"medical-office-server/internal/utils"
)

const defaultAppointmentLength = 30 * time.Minute

type AppointmentStore interface {
	Create(ctx context.Context, appointment *models.Appointment) error
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	ListForActor(ctx context.Context, actor models.Actor) ([]models.Appointment, error)
	Update(ctx context.Context, id string, mutate func(models.Appointment) (models.Appointment, error)) (*models.Appointment, error)
}

// AppointmentInput holds the caller-supplied fields of a new appointment.
// EndTime defaults to StartTime plus thirty minutes.
type AppointmentInput struct {
	DoctorID  string
	PatientID string
	StartTime time.Time
	EndTime   time.Time
	Reason    string
	Notes     string
}

// AppointmentUpdate is a partial update; nil fields are left unchanged.
type AppointmentUpdate struct {
	Status    *models.AppointmentStatus
	Notes     *string
	Reason    *string
	StartTime *time.Time
}

type AppointmentService struct {
	appointments AppointmentStore
	users        UserStore
	clock        utils.Clock
}

func NewAppointmentService(appointments AppointmentStore, users UserStore, clock utils.Clock) *AppointmentService {
	return &AppointmentService{appointments: appointments, users: users, clock: clock}
}

// Create books an appointment on behalf of actor. Patients book for
// themselves and start pending, doctors book for themselves and start
// accepted, admins name both parties and start pending.
func (s *AppointmentService) Create(ctx context.Context, actor models.Actor, input AppointmentInput) (*models.Appointment, error) {
	switch actor.Role {
	case models.RolePatient:
		return s.CreateByPatient(ctx, actor.ID, input)
	case models.RoleDoctor:
		return s.CreateByDoctor(ctx, actor.ID, input)
	case models.RoleAdmin:
		return s.create(ctx, input, models.StatusPending)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownRole, actor.Role)
	}
}

// CreateByPatient books a pending appointment for patientID.
func (s *AppointmentService) CreateByPatient(ctx context.Context, patientID string, input AppointmentInput) (*models.Appointment, error) {
	input.PatientID = patientID
	return s.create(ctx, input, models.StatusPending)
}

// CreateByDoctor books an appointment that doctorID has already accepted.
func (s *AppointmentService) CreateByDoctor(ctx context.Context, doctorID string, input AppointmentInput) (*models.Appointment, error) {
	input.DoctorID = doctorID
	return s.create(ctx, input, models.StatusAccepted)
}

func (s *AppointmentService) create(ctx context.Context, input AppointmentInput, status models.AppointmentStatus) (*models.Appointment, error) {
	if !input.StartTime.After(s.clock.Now()) {
		return nil, ErrStartTimeInPast
	}
	if err := s.requireRole(ctx, input.DoctorID, models.RoleDoctor); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, input.PatientID, models.RolePatient); err != nil {
		return nil, err
	}

	end := input.EndTime
	if !end.After(input.StartTime) {
		end = input.StartTime.Add(defaultAppointmentLength)
	}

	appointment := &models.Appointment{
		DoctorID:  input.DoctorID,
		PatientID: input.PatientID,
		StartTime: input.StartTime.UTC(),
		EndTime:   end.UTC(),
		Status:    status,
		Reason:    input.Reason,
		Notes:     input.Notes,
	}
	if err := s.appointments.Create(ctx, appointment); err != nil {
		return nil, err
	}
	return appointment, nil
}

func (s *AppointmentService) requireRole(ctx context.Context, userID string, role models.Role) error {
	if userID == "" {
		return ErrInvalidParticipant
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrInvalidParticipant
	}
	if err != nil {
		return err
	}
	if user.Role != role {
		return ErrInvalidParticipant
	}
	return nil
}

// Get returns the appointment if actor may see it.
func (s *AppointmentService) Get(ctx context.Context, id string, actor models.Actor) (*models.Appointment, error) {
	appointment, err := s.appointments.FindByID(ctx, id)
	if errors.Is(err, repository.ErrAppointmentNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !appointment.Involves(actor) {
		return nil, ErrNotInvolved
	}
	return appointment, nil
}

func (s *AppointmentService) ListForActor(ctx context.Context, actor models.Actor) ([]models.Appointment, error) {
	if !actor.Role.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownRole, actor.Role)
	}
	return s.appointments.ListForActor(ctx, actor)
}

// Update applies a partial update against the persisted appointment. The
// status change is validated first; if any check fails nothing is written.
func (s *AppointmentService) Update(ctx context.Context, id string, actor models.Actor, update AppointmentUpdate) (*models.Appointment, error) {
	now := s.clock.Now()
	appointment, err := s.appointments.Update(ctx, id, func(current models.Appointment) (models.Appointment, error) {
		return applyAppointmentUpdate(current, update, actor, now)
	})
	if errors.Is(err, repository.ErrAppointmentNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return appointment, nil
}

func applyAppointmentUpdate(
	current models.Appointment,
	update AppointmentUpdate,
	actor models.Actor,
	now time.Time,
) (models.Appointment, error) {
	if !actor.IsAdmin() && !current.Involves(actor) {
		return current, ErrNotInvolved
	}
	if err := ValidateTransition(current.Status, update.Status, actor.Role); err != nil {
		return current, err
	}
	if update.StartTime != nil && !update.StartTime.After(now) {
		return current, ErrStartTimeInPast
	}

	next := current
	if update.Status != nil {
		next.Status = *update.Status
	}
	if update.Notes != nil {
		next.Notes = *update.Notes
	}
	if update.Reason != nil {
		next.Reason = *update.Reason
	}
	if update.StartTime != nil {
		length := current.EndTime.Sub(current.StartTime)
		if length <= 0 {
			length = defaultAppointmentLength
		}
		next.StartTime = update.StartTime.UTC()
		next.EndTime = next.StartTime.Add(length)
	}
	return next, nil
}
