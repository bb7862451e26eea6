// Package storage defines persistence contracts for checkout state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested checkout record is missing.
	ErrNotFound = errors.New("record not found")
)

// Scope identifies whose selection is being persisted. Selections are
// keyed per user per event so switching events never leaks state.
type Scope struct {
	UserID  string
	EventID int64
}

// SelectionRecord stores one persisted product selection.
type SelectionRecord struct {
	AttendeeID   int64
	ProductID    int64
	Quantity     int
	CustomAmount *float64
}

// Snapshot stores the full persisted selection for a scope.
type Snapshot struct {
	Selections []SelectionRecord
	UpdatedAt  time.Time
}

// HousingRecord stores the persisted lodging booking.
type HousingRecord struct {
	ProductID int64
	CheckIn   time.Time
	CheckOut  time.Time
}

// MerchRecord stores one persisted merch quantity.
type MerchRecord struct {
	ProductID int64
	Quantity  int
}

// Extras stores the cart state that lives outside per-attendee
// selections: lodging, merch, and the insurance rider.
type Extras struct {
	Housing   *HousingRecord
	Merch     []MerchRecord
	Insurance bool
}

// SelectionStore persists in-progress checkout state between sessions.
type SelectionStore interface {
	// SaveSelections replaces the scope's selection snapshot atomically.
	// An empty slice drops every selection row.
	SaveSelections(ctx context.Context, scope Scope, selections []SelectionRecord) error
	// GetSelections returns the scope's snapshot or ErrNotFound.
	GetSelections(ctx context.Context, scope Scope) (Snapshot, error)
	// SaveExtras replaces the scope's housing, merch, and insurance.
	SaveExtras(ctx context.Context, scope Scope, extras Extras) error
	// GetExtras returns the scope's extras or ErrNotFound.
	GetExtras(ctx context.Context, scope Scope) (Extras, error)
	// ClearSelections drops the scope's snapshot and extras.
	ClearSelections(ctx context.Context, scope Scope) error
}
