package services

import (
	"errors"

	"GigSafe/internal/repository"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrUnauthorized        = errors.New("not permitted")
	ErrInvalidState        = errors.New("invalid application state")
	ErrAlreadyRequested    = errors.New("already requested")
	ErrAlreadySelected     = errors.New("Another worker has already been selected for this gig")
	ErrAlreadyResolved     = errors.New("dispute already resolved")
	ErrNoActiveDispute     = errors.New("no active dispute")
	ErrInsufficientBalance = errors.New("insufficient pending balance")
	ErrProvider            = errors.New("escrow provider error")

	ErrNotFound            = repository.ErrNotFound
	ErrTransactionConflict = repository.ErrTransactionConflict
)
