package interfaces

import (
	"context"
	"time"
)

// DownloadRecord is one requester's running download tally for an asset.
type DownloadRecord struct {
	AssetID    string    `json:"assetId"`
	Username   string    `json:"username"`
	Count      int64     `json:"count"`
	LastAt     time.Time `json:"lastAt"`
	FileName   string    `json:"fileName,omitempty"`
	OwnerName  string    `json:"ownerName,omitempty"`
}

// Notification announces a new or updated asset to requesters.
type Notification struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"assetId"`
	AssetKind string    `json:"assetKind,omitempty"`
	Message   string    `json:"message"`
	Uploader  string    `json:"uploader"`
	PublicKey string    `json:"publicKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordStore is the auxiliary-record port for download counters and
// notifications. Writes here are eventually consistent side effects of
// ledger operations: a failure after a successful ledger write is logged
// and tolerated, never rolled back.
type RecordStore interface {
	// IncrementDownload bumps the download tally for (assetID, username)
	// and returns the new count.
	IncrementDownload(ctx context.Context, rec DownloadRecord) (int64, error)

	// DownloadCount sums the tallies of all requesters for assetID.
	DownloadCount(ctx context.Context, assetID string) (int64, error)

	// Notify stores a notification for requesters to pick up.
	Notify(ctx context.Context, n Notification) error

	// Notifications returns up to limit most recent notifications.
	Notifications(ctx context.Context, limit int) ([]Notification, error)
}
