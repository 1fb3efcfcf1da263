package services

import (
	"fmt"
	"slices"

	"medical-office-server/internal/models"
)

// transitionTable lists the legal status changes regardless of who asks.
// Rejected, cancelled and completed are terminal.
var transitionTable = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.StatusPending:  {models.StatusAccepted, models.StatusRejected, models.StatusCancelled},
	models.StatusAccepted: {models.StatusCompleted, models.StatusCancelled},
}

// AllowedTransitions returns the statuses reachable from "from" in one step.
func AllowedTransitions(from models.AppointmentStatus) []models.AppointmentStatus {
	return slices.Clone(transitionTable[from])
}

// ValidateTransition decides whether role may move an appointment from current
// to requested. A nil requested status means no change and always passes.
// Patients may only cancel; doctors and admins may request any transition in
// the table, and nobody may request one outside it.
func ValidateTransition(current models.AppointmentStatus, requested *models.AppointmentStatus, role models.Role) error {
	if requested == nil {
		return nil
	}
	if !role.Valid() {
		return fmt.Errorf("%w %q", ErrUnknownRole, role)
	}

	if !slices.Contains(transitionTable[current], *requested) {
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, current, *requested)
	}

	switch role {
	case models.RolePatient:
		if *requested != models.StatusCancelled {
			return ErrPatientMayOnlyCancel
		}
	case models.RoleDoctor, models.RoleAdmin:
	}
	return nil
}
