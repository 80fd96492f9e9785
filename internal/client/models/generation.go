package models

import (
	"time"

	"github.com/google/uuid"
)

// Mode tells which remote endpoint a request goes to.
type Mode string

const (
	ModeEdit   Mode = "edit"
	ModeCreate Mode = "create"
)

// GenerationRequest is the input of one remote call.
type GenerationRequest struct {
	Source    *Image
	Prompt    string
	CreatedAt time.Time
}

func (r GenerationRequest) Mode() Mode {
	if r.Source != nil {
		return ModeEdit
	}
	return ModeCreate
}

// GenerationModel is the state of the current generation as observed by the UI.
// Invariant: Generated != nil if and only if Status.Kind == StatusKindCompleted.
type GenerationModel struct {
	ID        string
	Version   uint64
	Source    *Image
	Generated *Image
	Prompt    string
	Status    Status
	CreatedAt time.Time
}

// NewGenerationModel returns a fresh idle model.
func NewGenerationModel(version uint64, now time.Time) *GenerationModel {
	return &GenerationModel{
		ID:        uuid.NewString(),
		Version:   version,
		Status:    StatusIdle(),
		CreatedAt: now,
	}
}

// Request builds the request for the model's current inputs.
func (m *GenerationModel) Request(now time.Time) GenerationRequest {
	return GenerationRequest{Source: m.Source, Prompt: m.Prompt, CreatedAt: now}
}

// Snapshot copies the model so observers can hold it without racing the owner.
func (m *GenerationModel) Snapshot() GenerationModel {
	c := *m
	c.Source = m.Source.Clone()
	c.Generated = m.Generated.Clone()
	return c
}
