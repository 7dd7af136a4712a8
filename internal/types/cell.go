package types

import "time"

// FieldCell is the stored unit for one (entity, field) pair: the current
// value plus write provenance (spec.md §3).
type FieldCell struct {
	Value     Value
	Timestamp time.Time
	Writer    string // "" means no writer recorded
}

// StorageScope classifies a field for the snapshot hook (spec.md §3, §6).
type StorageScope int

const (
	// ScopeRuntime fields are never emitted by the snapshot hook.
	ScopeRuntime StorageScope = iota
	// ScopeConfiguration fields are emitted by the snapshot hook.
	ScopeConfiguration
)
