package model

import "time"

// WatchSnapshot is the rolling view of a watched supplier's footprint.
// Extended additively as new regions and sectors are observed.
type WatchSnapshot struct {
	Sectors       []string  `json:"sectors"`
	Regions       []string  `json:"regions"`
	ContractCount int64     `json:"contract_count"`
	SnapshotAt    time.Time `json:"snapshot_at"`
}

// WatchEntry is a user's watched supplier. NormalizedName is a lowered,
// suffix-stripped fragment matched by substring containment against awarded
// supplier names.
type WatchEntry struct {
	ID             int64          `json:"id"`
	UserID         string         `json:"user_id"`
	SupplierName   string         `json:"supplier_name"`
	NormalizedName string         `json:"normalized_name"`
	Snapshot       *WatchSnapshot `json:"snapshot,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NotificationType distinguishes watchlist notification kinds.
type NotificationType string

const (
	NotifyNewContract NotificationType = "NEW_CONTRACT"
	NotifyNewRegion   NotificationType = "NEW_REGION"
	NotifyNewSector   NotificationType = "NEW_SECTOR"
)

// Notification is an append-only watchlist alert. NEW_CONTRACT notifications
// are deduplicated per (user, supplier, title) within a 24-hour window.
type Notification struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	Type         NotificationType `json:"type"`
	Title        string           `json:"title"`
	Body         string           `json:"body"`
	SupplierName string           `json:"supplier_name"`
	ContractID   *int64           `json:"contract_id,omitempty"`
	Read         bool             `json:"read"`
	CreatedAt    time.Time        `json:"created_at"`
}
