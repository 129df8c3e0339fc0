package service

import "errors"

// Common service errors
var (
	ErrDuelNotFound = errors.New("duel not found")
)

// Duel lifecycle errors
var (
	ErrAlreadyInDuel      = errors.New("user already has an active duel")
	ErrSelfChallenge      = errors.New("cannot challenge yourself")
	ErrNotChallenged      = errors.New("user is not the challenged party")
	ErrExpiredChallenge   = errors.New("challenge has expired")
	ErrNoProblemAvailable = errors.New("no suitable problem available")
	ErrInvalidTransition  = errors.New("duel is not in the expected state")
)
