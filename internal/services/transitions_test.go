package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-office-server/internal/models"
)

func status(s models.AppointmentStatus) *models.AppointmentStatus {
	return &s
}

func TestValidateTransition_Table(t *testing.T) {
	allowed := map[[2]models.AppointmentStatus]bool{
		{models.StatusPending, models.StatusAccepted}:    true,
		{models.StatusPending, models.StatusRejected}:    true,
		{models.StatusPending, models.StatusCancelled}:   true,
		{models.StatusAccepted, models.StatusCompleted}:  true,
		{models.StatusAccepted, models.StatusCancelled}:  true,
	}

	for _, from := range models.AppointmentStatuses {
		for _, to := range models.AppointmentStatuses {
			t.Run(fmt.Sprintf("%s to %s", from, to), func(t *testing.T) {
				err := ValidateTransition(from, status(to), models.RoleDoctor)
				if allowed[[2]models.AppointmentStatus{from, to}] {
					assert.NoError(t, err)
					return
				}
				assert.ErrorIs(t, err, ErrIllegalTransition)
			})
		}
	}
}

func TestValidateTransition_TerminalStatesRejectEverything(t *testing.T) {
	roles := []models.Role{models.RoleAdmin, models.RoleDoctor, models.RolePatient}
	for _, from := range []models.AppointmentStatus{models.StatusRejected, models.StatusCancelled, models.StatusCompleted} {
		assert.Empty(t, AllowedTransitions(from))
		for _, to := range models.AppointmentStatuses {
			for _, role := range roles {
				assert.Error(t, ValidateTransition(from, status(to), role), "%s: %s to %s", role, from, to)
			}
		}
	}
}

func TestValidateTransition_PatientMayOnlyCancel(t *testing.T) {
	for _, from := range models.AppointmentStatuses {
		for _, to := range AllowedTransitions(from) {
			require.NoError(t, ValidateTransition(from, status(to), models.RoleDoctor))
			require.NoError(t, ValidateTransition(from, status(to), models.RoleAdmin))

			err := ValidateTransition(from, status(to), models.RolePatient)
			if to == models.StatusCancelled {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPatientMayOnlyCancel, "%s to %s", from, to)
			}
		}
	}
}

func TestValidateTransition_IllegalBeatsRoleCheck(t *testing.T) {
	err := ValidateTransition(models.StatusCompleted, status(models.StatusAccepted), models.RolePatient)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.NotErrorIs(t, err, ErrPatientMayOnlyCancel)
}

func TestValidateTransition_NoStatusRequested(t *testing.T) {
	for _, from := range models.AppointmentStatuses {
		assert.NoError(t, ValidateTransition(from, nil, models.RolePatient))
	}
	assert.NoError(t, ValidateTransition(models.StatusPending, nil, models.Role("nurse")))
}

func TestValidateTransition_UnknownRole(t *testing.T) {
	err := ValidateTransition(models.StatusPending, status(models.StatusCancelled), models.Role("nurse"))
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestValidateTransition_Scenario(t *testing.T) {
	current := models.StatusPending

	require.NoError(t, ValidateTransition(current, status(models.StatusAccepted), models.RoleDoctor))
	current = models.StatusAccepted

	require.NoError(t, ValidateTransition(current, status(models.StatusCancelled), models.RolePatient))
	current = models.StatusCancelled

	assert.ErrorIs(t, ValidateTransition(current, status(models.StatusAccepted), models.RoleDoctor), ErrIllegalTransition)
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	got := AllowedTransitions(models.StatusPending)
	got[0] = models.StatusCompleted

	assert.Equal(t, models.StatusAccepted, AllowedTransitions(models.StatusPending)[0])
}
