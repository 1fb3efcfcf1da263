package models

import (
	"fmt"
	"strings"
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusAccepted  AppointmentStatus = "accepted"
	StatusRejected  AppointmentStatus = "rejected"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// AppointmentStatuses lists every status.
var AppointmentStatuses = []AppointmentStatus{
	StatusPending,
	StatusAccepted,
	StatusRejected,
	StatusCancelled,
	StatusCompleted,
}

// ParseAppointmentStatus maps a status name onto the closed status set.
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	status := AppointmentStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AppointmentStatuses {
		if status == known {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// Appointment represents a scheduled medical appointment
type Appointment struct {
	BaseModel
	PatientID string            `gorm:"size:36;index" json:"patientId"`
	DoctorID  string            `gorm:"size:36;index" json:"doctorId"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Status    AppointmentStatus `gorm:"size:20;default:'pending'" json:"status"`
	Reason    string            `gorm:"size:255" json:"reason"`
	Notes     string            `gorm:"type:text" json:"notes"`

	// Relations
	Patient User `gorm:"foreignKey:PatientID" json:"-"`
	Doctor  User `gorm:"foreignKey:DoctorID" json:"-"`
}

// Involves reports whether the actor is one of the appointment's two parties.
func (a *Appointment) Involves(actor Actor) bool {
	return actor.ID == a.PatientID || actor.ID == a.DoctorID
}
