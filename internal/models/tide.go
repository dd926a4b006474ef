package models

import (
	"strings"
	"time"
)

// FlowType is the cadence a tide is planned around
type FlowType string

const (
	FlowTypeDaily    FlowType = "daily"
	FlowTypeWeekly   FlowType = "weekly"
	FlowTypeMonthly  FlowType = "monthly"
	FlowTypeProject  FlowType = "project"
	FlowTypeSeasonal FlowType = "seasonal"
)

// Valid reports whether the flow type is one of the known cadences
func (f FlowType) Valid() bool {
	switch f {
	case FlowTypeDaily, FlowTypeWeekly, FlowTypeMonthly, FlowTypeProject, FlowTypeSeasonal:
		return true
	}
	return false
}

// TideStatus is the lifecycle status of a tide. Transitions between statuses are free-form.
type TideStatus string

const (
	TideStatusActive    TideStatus = "active"
	TideStatusCompleted TideStatus = "completed"
	TideStatusPaused    TideStatus = "paused"
)

// Valid reports whether the status is known
func (s TideStatus) Valid() bool {
	switch s {
	case TideStatusActive, TideStatusCompleted, TideStatusPaused:
		return true
	}
	return false
}

// Intensity of a flow session
type Intensity string

const (
	IntensityGentle   Intensity = "gentle"
	IntensityModerate Intensity = "moderate"
	IntensityStrong   Intensity = "strong"
)

// Valid reports whether the intensity is known
func (i Intensity) Valid() bool {
	switch i {
	case IntensityGentle, IntensityModerate, IntensityStrong:
		return true
	}
	return false
}

// Tide is a bounded unit of work. The three collections are embedded in the
// document and are not separately addressable.
type Tide struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	Name          string         `json:"name"`
	FlowType      FlowType       `json:"flow_type"`
	Status        TideStatus     `json:"status"`
	Description   string         `json:"description,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	FlowSessions  []FlowSession  `json:"flow_sessions"`
	EnergyUpdates []EnergyUpdate `json:"energy_updates"`
	TaskLinks     []TaskLink     `json:"task_links"`
}

// FlowSession is a timed focus interval within a tide
type FlowSession struct {
	ID          string    `json:"id"`
	TideID      string    `json:"tide_id"`
	Intensity   Intensity `json:"intensity"`
	Duration    int       `json:"duration"` // minutes
	StartedAt   time.Time `json:"started_at"`
	WorkContext string    `json:"work_context,omitempty"`
	EnergyLevel string    `json:"energy_level,omitempty"`
}

// EnergyUpdate is an energy check-in recorded against a tide
type EnergyUpdate struct {
	ID          string    `json:"id"`
	TideID      string    `json:"tide_id"`
	EnergyLevel string    `json:"energy_level"`
	Context     string    `json:"context,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TaskLink points at a task tracked in an external system
type TaskLink struct {
	ID        string    `json:"id"`
	TideID    string    `json:"tide_id"`
	TaskURL   string    `json:"task_url"`
	TaskTitle string    `json:"task_title"`
	TaskType  string    `json:"task_type,omitempty"`
	LinkedAt  time.Time `json:"linked_at"`
}

// CreateTideRequest carries the caller-supplied fields of a new tide
type CreateTideRequest struct {
	Name        string   `json:"name"`
	FlowType    FlowType `json:"flow_type"`
	Description string   `json:"description,omitempty"`
}

// Validate checks the create request
func (r *CreateTideRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("name", "is required")
	}
	if !r.FlowType.Valid() {
		return NewValidationError("flow_type", "must be one of daily, weekly, monthly, project, seasonal")
	}
	return nil
}

// UpdateTideRequest is a direct field update. Nil fields are left unchanged.
type UpdateTideRequest struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *TideStatus `json:"status,omitempty"`
}

// Validate checks the update request
func (r *UpdateTideRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return NewValidationError("name", "cannot be empty")
	}
	if r.Status != nil && !r.Status.Valid() {
		return NewValidationError("status", "must be one of active, completed, paused")
	}
	return nil
}

// Apply copies the set fields onto the tide
func (r *UpdateTideRequest) Apply(t *Tide) {
	if r.Name != nil {
		t.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.Status != nil {
		t.Status = *r.Status
	}
}

// ValidateFlowSession checks caller input for a new flow session
func ValidateFlowSession(s *FlowSession) error {
	if !s.Intensity.Valid() {
		return NewValidationError("intensity", "must be one of gentle, moderate, strong")
	}
	if s.Duration <= 0 {
		return NewValidationError("duration", "must be a positive number of minutes")
	}
	return nil
}

// ValidateEnergyUpdate checks caller input for a new energy update
func ValidateEnergyUpdate(u *EnergyUpdate) error {
	if strings.TrimSpace(u.EnergyLevel) == "" {
		return NewValidationError("energy_level", "is required")
	}
	return nil
}

// ValidateTaskLink checks caller input for a new task link
func ValidateTaskLink(l *TaskLink) error {
	if strings.TrimSpace(l.TaskURL) == "" {
		return NewValidationError("task_url", "is required")
	}
	if strings.TrimSpace(l.TaskTitle) == "" {
		return NewValidationError("task_title", "is required")
	}
	return nil
}

// ValidateID rejects ids that cannot be used inside a storage key
func ValidateID(field, id string) error {
	if id == "" {
		return NewValidationError(field, "is required")
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return NewValidationError(field, "contains invalid characters")
	}
	return nil
}

// HasItemID reports whether any embedded item already uses id
func (t *Tide) HasItemID(id string) bool {
	for _, s := range t.FlowSessions {
		if s.ID == id {
			return true
		}
	}
	for _, u := range t.EnergyUpdates {
		if u.ID == id {
			return true
		}
	}
	for _, l := range t.TaskLinks {
		if l.ID == id {
			return true
		}
	}
	return false
}

// LastFlowAt returns the most recent flow session start, or nil when there are none
func (t *Tide) LastFlowAt() *time.Time {
	var last *time.Time
	for i := range t.FlowSessions {
		started := t.FlowSessions[i].StartedAt
		if last == nil || started.After(*last) {
			s := started
			last = &s
		}
	}
	return last
}

// IndexEntry projects the tide onto its listing summary
func (t *Tide) IndexEntry() TideIndexEntry {
	return TideIndexEntry{
		ID:         t.ID,
		Name:       t.Name,
		FlowType:   t.FlowType,
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
		FlowCount:  len(t.FlowSessions),
		LastFlowAt: t.LastFlowAt(),
	}
}

// EnsureCollections replaces nil collections with empty ones so documents
// always serialize the arrays.
func (t *Tide) EnsureCollections() {
	if t.FlowSessions == nil {
		t.FlowSessions = []FlowSession{}
	}
	if t.EnergyUpdates == nil {
		t.EnergyUpdates = []EnergyUpdate{}
	}
	if t.TaskLinks == nil {
		t.TaskLinks = []TaskLink{}
	}
}
