package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// base contains the common fields shared by all models.
// ID uses UUID v7 (time-ordered) for efficient B-tree indexing and natural
// chronological ordering without a separate created_at sort. CreatedAt and
// UpdatedAt are managed automatically by GORM.
type base struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a new UUID v7 if the ID is not already set.
func (b *base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == (uuid.UUID{}) {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	return nil
}

// softDelete extends base with a nullable DeletedAt field for soft deletion.
type softDelete struct {
	base
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// -----------------------------------------------------------------------------
// Source
// -----------------------------------------------------------------------------

// SourceKind is the closed set of adapter types an Ingester can be built for.
type SourceKind string

const (
	SourceKindRSS                 SourceKind = "rss"
	SourceKindAtom                SourceKind = "atom"
	SourceKindGitHub              SourceKind = "github"
	SourceKindGitHubNotifications SourceKind = "github_notifications"
)

// Source is a subscribed origin. Config holds kind-specific JSON (feed URL,
// repository list, endpoint tags — see internal/ingest for the shapes).
// At most one Secret is associated per Source; sources whose kind requires a
// credential may sit in an unusable state while SecretID is nil.
type Source struct {
	base
	Kind         SourceKind `gorm:"not null;index"`
	Name         string     `gorm:"not null"`
	Config       string     `gorm:"type:text;not null;default:'{}'"`
	Enabled      bool       `gorm:"not null;default:true;index"`
	LastSyncedAt *time.Time
	SecretID     *uuid.UUID `gorm:"type:text;index"`
}

// -----------------------------------------------------------------------------
// Secret
// -----------------------------------------------------------------------------

// SecretTTLKind selects how a Secret's ExpiresAt is derived.
type SecretTTLKind string

const (
	SecretTTLForever  SecretTTLKind = "forever"
	SecretTTLRelative SecretTTLKind = "relative"
	SecretTTLAbsolute SecretTTLKind = "absolute"
)

// Secret is a credential descriptor. The token material itself never lives
// here — it is stored in the vault (internal/vault), keyed by this row's ID.
// RefreshTokenID is a self-referential marker: non-nil means the vault holds
// a refresh token under this same Secret's id, not a pointer to another row.
type Secret struct {
	base
	Name                 string        `gorm:"uniqueIndex;not null"`
	TTLKind              SecretTTLKind `gorm:"not null;default:'forever'"`
	TTLValue             string        `gorm:"default:''"`
	ExpiresAt            *time.Time    `gorm:"index"`
	RefreshTokenID       *uuid.UUID    `gorm:"type:text"`
	RefreshFailureCount  int           `gorm:"not null;default:0"`
	IsDeviceFlowToken    bool          `gorm:"not null;default:false;index"`
}

// -----------------------------------------------------------------------------
// Item
// -----------------------------------------------------------------------------

// ItemState is an opaque, DB-enforced-by-convention string. unread/read/archived
// are the only values assigned by this codebase; callers may introduce others.
type ItemState string

const (
	ItemStateUnread   ItemState = "unread"
	ItemStateRead     ItemState = "read"
	ItemStateArchived ItemState = "archived"
)

// ContentStatus tracks the extraction lifecycle of an Item.
type ContentStatus string

const (
	ContentStatusFeedOnly ContentStatus = "feed_only"
	ContentStatusFetching ContentStatus = "fetching"
	ContentStatusExtracted ContentStatus = "extracted"
	ContentStatusFailed   ContentStatus = "failed"
)

// Completeness is the classifier's verdict on feed-delivered content.
type Completeness string

const (
	CompletenessFull    Completeness = "full"
	CompletenessPartial Completeness = "partial"
	CompletenessUnknown Completeness = "unknown"
)

// Item is a normalized unit of content ingested from a Source.
// (SourceID, ExternalID) is unique — see repository Upsert.
type Item struct {
	base
	SourceID              uuid.UUID  `gorm:"type:text;not null;index:idx_item_natural_key,unique,priority:1"`
	ExternalID            string     `gorm:"not null;index:idx_item_natural_key,unique,priority:2"`
	Title                 string     `gorm:"not null"`
	Summary               string     `gorm:"type:text;default:''"`
	URL                   string     `gorm:"not null"`
	Kind                  string     `gorm:"not null"`
	State                 ItemState  `gorm:"not null;default:'unread';index"`
	ImageURL              string     `gorm:"default:''"`
	ContentHTML           string     `gorm:"type:text;default:''"`
	Author                string     `gorm:"default:''"`
	Category              string     `gorm:"type:text;default:'[]'"` // JSON array of tags
	Comments              string     `gorm:"default:''"`
	ThreadID              string     `gorm:"default:''"`
	ContentStatus         string     `gorm:"default:''"` // "" means null per spec's content_status∈{null,...}
	ExtractedContentHTML  string     `gorm:"type:text;default:''"`
	ContentCompleteness   string     `gorm:"default:''"` // "" means null
	ExtractionFailedReason string    `gorm:"default:''"`
}

// -----------------------------------------------------------------------------
// Event
// -----------------------------------------------------------------------------

// Event is an append-only audit row keyed to an Item.
type Event struct {
	base
	ItemID     uuid.UUID `gorm:"type:text;not null;index"`
	Kind       string    `gorm:"not null"` // e.g. "ingested"
	OccurredAt time.Time `gorm:"not null"`
}

// -----------------------------------------------------------------------------
// Taxonomy: Group, SourceGroup, CustomView, Preference
// -----------------------------------------------------------------------------

// Group is a named tag.
type Group struct {
	base
	Name string `gorm:"uniqueIndex;not null"`
}

// SourceGroup is the many-to-many bridge between Source and Group.
type SourceGroup struct {
	base
	SourceID uuid.UUID `gorm:"type:text;not null;index:idx_source_group,unique,priority:1"`
	GroupID  uuid.UUID `gorm:"type:text;not null;index:idx_source_group,unique,priority:2"`
}

// CustomView is a saved filter. SourceIDs and GroupNames are JSON arrays;
// an Item matches the view when its Source is in either set.
type CustomView struct {
	base
	Name       string `gorm:"uniqueIndex;not null"`
	SourceIDs  string `gorm:"type:text;default:'[]'"`
	GroupNames string `gorm:"type:text;default:'[]'"`
}

// Preference is a process-wide string key/value bag.
// No base embed — keyed by Key itself, following teacher's Setting model.
type Preference struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}
