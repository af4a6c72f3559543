package models

import (
	"encoding/json"
	"time"
)

// PublicZone is readable and writable by every authenticated user. Share
// codes live here.
const PublicZone = "_public"

type Zone struct {
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

type Record struct {
	Zone       string          `json:"zone"`
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Fields     json.RawMessage `json:"fields"`
	Version    int64           `json:"version"`
	CreatedBy  string          `json:"created_by"`
	ModifiedBy string          `json:"modified_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type Share struct {
	Locator      string    `json:"locator"`
	Zone         string    `json:"zone"`
	RootRecordID string    `json:"root_record_id"`
	OwnerID      string    `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type Subscription struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	Zone       string    `json:"zone"`
	RecordType string    `json:"record_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notification is pushed over the zone event feed after a record changes.
type Notification struct {
	Zone       string    `json:"zone"`
	RecordType string    `json:"record_type"`
	RecordID   string    `json:"record_id"`
	Op         string    `json:"op"`
	Version    int64     `json:"version"`
	At         time.Time `json:"at"`
}

type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

type SortKey struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

type Query struct {
	Type    string    `json:"type"`
	Filters []Filter  `json:"filters"`
	Sort    []SortKey `json:"sort"`
}
