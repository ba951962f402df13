package outbox

import (
	"time"
)

// Kind selects the transport that delivers an item.
type Kind string

const (
	KindEmail        Kind = "email"
	KindWebhook      Kind = "webhook"
	KindExport       Kind = "export"
	KindCompensation Kind = "compensation"
)

// Kinds lists every known kind.
var Kinds = []Kind{KindEmail, KindWebhook, KindExport, KindCompensation}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindEmail, KindWebhook, KindExport, KindCompensation:
		return true
	}
	return false
}

// Status is the lifecycle state of an item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusDelivered Status = "delivered"
	StatusDead      Status = "dead"
)

// Item is one unit of outbound work.
type Item struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	TenantID      string     `gorm:"size:64;not null;uniqueIndex:ux_outbox_items_tenant_dedupe,priority:1" json:"tenant_id"`
	DedupeKey     string     `gorm:"size:255;not null;uniqueIndex:ux_outbox_items_tenant_dedupe,priority:2" json:"dedupe_key"`
	Kind          Kind       `gorm:"size:32;not null" json:"kind"`
	Payload       []byte     `gorm:"not null" json:"payload"`
	Status        Status     `gorm:"size:16;not null;index:ix_outbox_items_due,priority:1" json:"status"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt time.Time  `gorm:"not null;index:ix_outbox_items_due,priority:2" json:"next_attempt_at"`
	LastError     string     `gorm:"size:512" json:"last_error,omitempty"`
	Version       int64      `gorm:"not null;default:0" json:"version"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName implements gorm's tabler.
func (Item) TableName() string { return "outbox_items" }

// ReplayAudit records one operator replay of a dead item.
type ReplayAudit struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	ItemID           string    `gorm:"size:36;not null;index:ix_outbox_replays_item" json:"item_id"`
	TenantID         string    `gorm:"size:64;not null" json:"tenant_id"`
	Actor            string    `gorm:"size:255;not null" json:"actor"`
	PreviousAttempts int       `gorm:"not null" json:"previous_attempts"`
	LastError        string    `gorm:"size:512" json:"last_error,omitempty"`
	ReplayedAt       time.Time `gorm:"not null" json:"replayed_at"`
}

// TableName implements gorm's tabler.
func (ReplayAudit) TableName() string { return "outbox_replays" }

// CompensationPayload is the payload of a compensation item: undo the
// external side effect identified by ExternalID on Dependency.
type CompensationPayload struct {
	Dependency string `json:"dependency" validate:"required"`
	ExternalID string `json:"external_id" validate:"required"`
	Operation  string `json:"operation,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Models returns the gorm models owned by this package, for auto-migration.
func Models() []interface{} {
	return []interface{}{&Item{}, &ReplayAudit{}}
}
