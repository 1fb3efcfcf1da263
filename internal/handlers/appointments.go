package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"medical-office-server/internal/middleware"
	"medical-office-server/internal/models"
	"medical-office-server/internal/services"
	"medical-office-server/internal/utils"
)

type appointmentService interface {
	Create(ctx context.Context, actor models.Actor, input services.AppointmentInput) (*models.Appointment, error)
	Get(ctx context.Context, id string, actor models.Actor) (*models.Appointment, error)
	ListForActor(ctx context.Context, actor models.Actor) ([]models.Appointment, error)
	Update(ctx context.Context, id string, actor models.Actor, update services.AppointmentUpdate) (*models.Appointment, error)
}

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	appointments appointmentService
	logger       *zap.Logger
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(appointments appointmentService, logger *zap.Logger) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments, logger: logger}
}

// CreateAppointmentRequest represents the request body for creating an
// appointment. Patients and doctors book for themselves, so the matching ID is
// taken from the token; admins must send both.
type CreateAppointmentRequest struct {
	DoctorID  string     `json:"doctorId" binding:"omitempty,uuid"`
	PatientID string     `json:"patientId" binding:"omitempty,uuid"`
	StartTime time.Time  `json:"startTime" binding:"required"`
	EndTime   *time.Time `json:"endTime"`
	Reason    string     `json:"reason" binding:"required"`
	Notes     string     `json:"notes"`
}

// CreateAppointment books an appointment. Patient bookings start pending,
// doctor bookings start accepted.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	actor, ok := middleware.GetActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	input := services.AppointmentInput{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		StartTime: req.StartTime,
		Reason:    req.Reason,
		Notes:     req.Notes,
	}
	if req.EndTime != nil {
		input.EndTime = *req.EndTime
	}

	appointment, err := h.appointments.Create(c.Request.Context(), actor, input)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Created(c, "Appointment created successfully", appointment)
}

// GetAppointmentsForUser lists the caller's appointments; admins see all.
func (h *AppointmentHandler) GetAppointmentsForUser(c *gin.Context) {
	actor, ok := middleware.GetActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	appointments, err := h.appointments.ListForActor(c.Request.Context(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetAppointmentByID handles fetching a single appointment by its ID.
// Accessible by involved patient, doctor, or an admin.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	actor, ok := middleware.GetActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	id, ok := appointmentID(c)
	if !ok {
		return
	}

	appointment, err := h.appointments.Get(c.Request.Context(), id, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, "Appointment fetched successfully", appointment)
}

// UpdateAppointmentRequest is a partial update; omitted fields are unchanged.
type UpdateAppointmentRequest struct {
	Status    *string    `json:"status"`
	Notes     *string    `json:"notes"`
	Reason    *string    `json:"reason"`
	StartTime *time.Time `json:"startTime"`
}

// UpdateAppointment applies a partial update. A status change is checked
// against the stored status before any field is written; if it is refused the
// whole request is refused.
func (h *AppointmentHandler) UpdateAppointment(c *gin.Context) {
	actor, ok := middleware.GetActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	id, ok := appointmentID(c)
	if !ok {
		return
	}

	var req UpdateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	update := services.AppointmentUpdate{
		Notes:     req.Notes,
		Reason:    req.Reason,
		StartTime: req.StartTime,
	}
	if req.Status != nil {
		status, err := models.ParseAppointmentStatus(*req.Status)
		if err != nil {
			utils.BadRequest(c, err.Error())
			return
		}
		update.Status = &status
	}

	appointment, err := h.appointments.Update(c.Request.Context(), id, actor, update)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, "Appointment updated successfully", appointment)
}

func (h *AppointmentHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrIllegalTransition),
		errors.Is(err, services.ErrPatientMayOnlyCancel),
		errors.Is(err, services.ErrStartTimeInPast),
		errors.Is(err, services.ErrInvalidParticipant):
		utils.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrAppointmentNotFound):
		utils.NotFound(c, "Appointment not found")
	case errors.Is(err, services.ErrNotInvolved), errors.Is(err, services.ErrUnknownRole):
		utils.Forbidden(c, "You are not authorized to access this appointment")
	default:
		h.logger.Error("appointment request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.InternalServerError(c, "Failed to process appointment")
	}
}

func appointmentID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		utils.BadRequest(c, "Invalid Appointment ID format")
		return "", false
	}
	return id, true
}
