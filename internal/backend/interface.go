package backend

import (
	"context"

	"subtrack/internal/notify"
	"subtrack/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult bundles the stores a binary needs. Notifications is where
// scheduled reminders are persisted; it is shared with the worker for every
// backend except memory.
type BackendResult struct {
	Store         store.SubscriptionStore
	Notifications notify.Store
	Cleanup       CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateDeliverer(config Config) (notify.Deliverer, CleanupFunc)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite holds the subscriptions for the sqlite backend and the scheduled
	// notifications for both sqlite and sheets.
	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	GoogleOAuthClientJSON    string
	GoogleOAuthTokenJSON     string

	// Memory backend file; empty keeps everything in process.
	MemoryStorePath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// SharesNotifications reports whether scheduled notifications live in a
// store other processes can see.
func (bt BackendType) SharesNotifications() bool {
	return bt != MemoryBackend
}
