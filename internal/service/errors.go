package service

import (
	"errors"
	"fmt"
)

var (
	// Auth.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrEmailTaken         = errors.New("user already registered")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
	ErrInvalidEmail       = errors.New("unable to validate email address: invalid format")
	ErrCodeInvalid        = errors.New("confirmation code invalid")
	ErrCodeExpired        = errors.New("confirmation code expired")
	ErrCodeNotRequested   = errors.New("confirmation code not requested")
	ErrConfirmationEmail  = errors.New("error sending confirmation email")
	ErrRateLimited        = errors.New("too many attempts")
	ErrUserNotFound       = errors.New("user not found")

	// Composer y feed.
	ErrNothingToSubmit     = errors.New("nothing to submit: text or image required")
	ErrInvalidTone         = errors.New("invalid tone")
	ErrInvalidPersona      = errors.New("invalid persona")
	ErrInvalidImage        = errors.New("invalid source image")
	ErrComposerBusy        = errors.New("a submission is already in progress")
	ErrResponseNotFound    = errors.New("response not found")
	ErrMemeAlreadyAttached = errors.New("meme image already attached")
	ErrMemeInFlight        = errors.New("meme generation already in progress")

	// ErrGeneration es el objetivo de errors.Is para cualquier *GenerationError.
	ErrGeneration = errors.New("generation failed")
	// ErrPersistence es el objetivo de errors.Is para cualquier *PersistenceError.
	ErrPersistence = errors.New("persistence failed")
)

// GenerationError envuelve fallas del proveedor generativo.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("falla en la matriz de combate IA (%s): %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// PersistenceError envuelve fallas del Result Store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
