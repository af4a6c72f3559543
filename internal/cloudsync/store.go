package cloudsync

import (
	"context"
	"errors"
)

var (
	ErrUnauthorized = errors.New("cloudsync unauthorized")
	ErrForbidden    = errors.New("cloudsync forbidden")
	ErrNotFound     = errors.New("cloudsync not found")
	ErrConflict     = errors.New("cloudsync conflict")
	ErrUnavailable  = errors.New("cloudsync unavailable")
)

type Record struct {
	Zone    string         `json:"zone"`
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Fields  map[string]any `json:"fields"`
	Version int64          `json:"version,omitempty"`
}

type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

type Sort struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

type Query struct {
	Type    string   `json:"type"`
	Filters []Filter `json:"filters,omitempty"`
	Sort    []Sort   `json:"sort,omitempty"`
}

type Share struct {
	Locator      string `json:"locator"`
	Zone         string `json:"zone"`
	RootRecordID string `json:"root_record_id"`
	OwnerID      string `json:"owner_id"`
}

type Notification struct {
	Zone       string `json:"zone"`
	RecordType string `json:"record_type"`
	RecordID   string `json:"record_id"`
	Op         string `json:"op"`
	Version    int64  `json:"version"`
}

// RecordStore is the remote store the sync engine talks to. Implementations
// return ErrNotFound for missing zones, records and shares.
type RecordStore interface {
	// AccountStatus fails when the caller cannot use the store.
	AccountStatus(ctx context.Context) error
	// CreateZone succeeds if the zone already exists and belongs to the caller.
	CreateZone(ctx context.Context, zone string) error
	Fetch(ctx context.Context, zone, id string) (*Record, error)
	// Save creates or overwrites rec.
	Save(ctx context.Context, rec Record) (*Record, error)
	Delete(ctx context.Context, zone, id string) error
	// Modify saves and deletes in one request. Missing deletes are ignored.
	Modify(ctx context.Context, zone string, save []Record, deleteIDs []string) error
	Query(ctx context.Context, zone string, q Query) ([]Record, error)
	CreateShare(ctx context.Context, zone, rootRecordID string) (*Share, error)
	ResolveShare(ctx context.Context, locator string) (*Share, error)
	AcceptShare(ctx context.Context, locator string) (*Share, error)
	SaveSubscription(ctx context.Context, zone, id, recordType string) error
}

// NotificationSource streams change notifications for a zone until ctx is
// done or the stream breaks, then closes the channel.
type NotificationSource interface {
	Notifications(ctx context.Context, zone string) (<-chan Notification, error)
}
