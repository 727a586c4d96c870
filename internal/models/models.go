package models

import (
	"time"
)

// LoadStatus represents the state of the one-shot employee load
type LoadStatus string

const (
	StatusNotStarted LoadStatus = "not_started"
	StatusLoading    LoadStatus = "loading"
	StatusLoaded     LoadStatus = "loaded"
	StatusFailed     LoadStatus = "failed"
)

// LoadState is a snapshot of the loader as seen by consumers
type LoadState struct {
	Status    LoadStatus `json:"status"`
	Loading   bool       `json:"loading"`
	Error     string     `json:"error,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
}

// SourceUser is a record from the external user-listing API
type SourceUser struct {
	ID        int           `json:"id"`
	FirstName string        `json:"firstName"`
	LastName  string        `json:"lastName"`
	Email     string        `json:"email"`
	Age       int           `json:"age"`
	Phone     string        `json:"phone"`
	Address   SourceAddress `json:"address"`
}

// SourceAddress is the nested address of a SourceUser
type SourceAddress struct {
	Address string `json:"address"`
	City    string `json:"city"`
}

// SourceUsersPage is the JSON document returned by the user-listing endpoint
type SourceUsersPage struct {
	Users []SourceUser `json:"users"`
	Total int          `json:"total"`
	Skip  int          `json:"skip"`
	Limit int          `json:"limit"`
}

// PersistedState is the JSON document stored under the fixed storage key
type PersistedState struct {
	State PersistedStore `json:"state"`
}

// PersistedStore holds the persisted parts of the record store
type PersistedStore struct {
	Employees []Employee `json:"employees"`
	Bookmarks []int      `json:"bookmarks"`
}

// ChangeKind identifies which part of the record store changed
type ChangeKind string

const (
	ChangeEmployees ChangeKind = "employees"
	ChangeBookmarks ChangeKind = "bookmarks"
	ChangeFeedback  ChangeKind = "feedback"
	ChangeReset     ChangeKind = "reset"
)

// Change is delivered to store subscribers after every mutation
type Change struct {
	Revision   uint64     `json:"revision"`
	Kind       ChangeKind `json:"kind"`
	EmployeeID int        `json:"employee_id,omitempty"`
	At         time.Time  `json:"at"`
}

// PersistJob is a snapshot waiting to be written by the persistence worker
type PersistJob struct {
	Revision    uint64
	Payload     []byte
	SubmittedAt time.Time
}

// PersistResult is the outcome of writing a PersistJob
type PersistResult struct {
	Revision uint64
	Success  bool
	// Skipped is set when a newer revision was already stored
	Skipped     bool
	Error       error
	ProcessedAt time.Time
}

// SubscriberInfo describes a connected event stream client
type SubscriberInfo struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastActive    time.Time `json:"last_active"`
	EventsSent    int64     `json:"events_sent"`
	EventsDropped int64     `json:"events_dropped"`
}
