package services

import "errors"

var (
	ErrGenerationInProgress = errors.New("a generation is already in progress")
	ErrPaywallRequired      = errors.New("no free generations left, a subscription is required")
	ErrStaleResult          = errors.New("generation result discarded: the model was reset")
	ErrNoImageToSave        = errors.New("there is no generated image to save")
	ErrNotRunning           = errors.New("generation service is not running")
)
