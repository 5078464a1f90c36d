package models

import "time"

// ItemState represents the indexing lifecycle of an ingested artifact.
//
// Valid transitions: NEW -> INDEXING -> {INDEXED, FAILED}; INDEXED or FAILED
// return to NEW when a newer external version is observed; any state may
// transition to REMOVED when the item disappears from its source.
type ItemState string

const (
	ItemStateNew      ItemState = "NEW"
	ItemStateIndexing ItemState = "INDEXING"
	ItemStateIndexed  ItemState = "INDEXED"
	ItemStateFailed   ItemState = "FAILED"
	ItemStateRemoved  ItemState = "REMOVED"
)

// CanTransition reports whether moving from s to next is a legal step in
// the item state machine.
func (s ItemState) CanTransition(next ItemState) bool {
	if next == ItemStateRemoved {
		return true
	}
	switch s {
	case ItemStateNew:
		return next == ItemStateIndexing
	case ItemStateIndexing:
		return next == ItemStateIndexed || next == ItemStateFailed
	case ItemStateIndexed, ItemStateFailed:
		return next == ItemStateNew
	default:
		return false
	}
}

// IngestItem tracks one externally-sourced artifact (email, wiki page,
// issue) through discovery and indexing. At most one indexer holds
// INDEXING for a given (connection, external id) at a time; the store
// enforces this with a compare-and-swap on state.
type IngestItem struct {
	// ID is the unique identifier for the tracked item.
	ID string `json:"id"`

	// ConnectionID identifies the source account this item came from.
	ConnectionID string `json:"connection_id"`

	// ExternalID is the item's identifier within the external system.
	ExternalID string `json:"external_id"`

	// ExternalVersion increases monotonically with source-side edits.
	ExternalVersion int64 `json:"external_version"`

	// State is the current indexing lifecycle state.
	State ItemState `json:"state"`

	// LastError describes the most recent indexing failure, if any.
	LastError string `json:"last_error,omitempty"`

	// AttemptCount counts indexing attempts for the current version.
	AttemptCount int `json:"attempt_count"`

	// ContentHash fingerprints the item body for change detection when
	// the source does not expose versions.
	ContentHash string `json:"content_hash,omitempty"`

	// IndexedVersion is the external version currently represented in the
	// vector store, used to delete stale vectors on re-index.
	IndexedVersion int64 `json:"indexed_version,omitempty"`

	// Title is a human-readable label used in retrieval metadata.
	Title string `json:"title,omitempty"`

	// Scope is the source-side container (space, folder, project key).
	Scope string `json:"scope,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthStatus represents the credential state of a source connection.
type AuthStatus string

const (
	AuthStatusValid   AuthStatus = "VALID"
	AuthStatusInvalid AuthStatus = "INVALID"
)

// SourceKind enumerates the supported external source families.
type SourceKind string

const (
	SourceKindEmail   SourceKind = "email"
	SourceKindWiki    SourceKind = "wiki"
	SourceKindTracker SourceKind = "tracker"
)

// Connection is a configured account against one external source. Pollers
// pick the connection with the oldest LastPolledAt whose auth is VALID.
type Connection struct {
	// ID is the unique identifier for the connection.
	ID string `json:"id"`

	// ClientID scopes ingested material for retrieval filtering.
	ClientID string `json:"client_id"`

	// ProjectID optionally narrows the scope to one project.
	ProjectID string `json:"project_id,omitempty"`

	// Kind selects the source family.
	Kind SourceKind `json:"kind"`

	// BaseURL is the root endpoint of the external system.
	BaseURL string `json:"base_url"`

	// Scopes are the spaces/folders/projects to poll.
	Scopes []string `json:"scopes,omitempty"`

	// AuthStatus gates polling; INVALID connections are skipped until reset.
	AuthStatus AuthStatus `json:"auth_status"`

	// LastPolledAt is when a poller last visited this connection.
	LastPolledAt time.Time `json:"last_polled_at,omitempty"`

	// LastSuccessfulSyncAt is when a poll last completed without error.
	LastSuccessfulSyncAt time.Time `json:"last_successful_sync_at,omitempty"`

	// LastErrorMessage describes the most recent poll failure.
	LastErrorMessage string `json:"last_error_message,omitempty"`
}
