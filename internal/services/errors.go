package services

import "errors"

// Refresh-token failures. Handlers may render several of them identically, but
// each stays distinct so logs and audit can tell them apart.
var (
	ErrTokenNotFound         = errors.New("refresh token not found")
	ErrTokenExpired          = errors.New("refresh token expired")
	ErrTokenReuseDetected    = errors.New("refresh token reuse detected")
	ErrTokenAlreadyRevoked   = errors.New("refresh token already revoked")
	ErrConcurrentTokenUpdate = errors.New("refresh token was updated concurrently")
	ErrInvalidCredentials    = errors.New("invalid email or password")
)

// Appointment failures.
var (
	ErrIllegalTransition    = errors.New("illegal transition")
	ErrPatientMayOnlyCancel = errors.New("patients may only cancel")
	ErrUnknownRole          = errors.New("unknown role")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrNotInvolved          = errors.New("actor is not a party to the appointment")
	ErrInvalidParticipant   = errors.New("doctor or patient not found")
	ErrStartTimeInPast      = errors.New("appointment start time must be in the future")
)
