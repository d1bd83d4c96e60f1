package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListOptions contains common pagination options for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// ItemFilter narrows a get_items query. A nil/empty field means "no filter
// on this dimension". SourceIDs and GroupNames are both any-of membership
// tests; when GroupNames is non-empty the join goes through SourceGroup.
type ItemFilter struct {
	State      ItemState
	SourceIDs  []uuid.UUID
	GroupNames []string
	Opts       ListOptions
}

// SourceRepository is the typed CRUD surface over Source rows.
type SourceRepository interface {
	Create(ctx context.Context, s *Source) error
	GetByID(ctx context.Context, id uuid.UUID) (*Source, error)
	List(ctx context.Context, opts ListOptions) ([]Source, error)
	ListEnabled(ctx context.Context) ([]Source, error)
	Update(ctx context.Context, s *Source) error
	UpdateLastSyncedAt(ctx context.Context, id uuid.UUID, t time.Time) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	DisableBySecretID(ctx context.Context, secretID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SecretRepository is the typed CRUD surface over Secret rows.
type SecretRepository interface {
	Create(ctx context.Context, s *Secret) error
	GetByID(ctx context.Context, id uuid.UUID) (*Secret, error)
	GetByName(ctx context.Context, name string) (*Secret, error)
	GetDeviceFlowToken(ctx context.Context) (*Secret, error)
	List(ctx context.Context, opts ListOptions) ([]Secret, error)
	Update(ctx context.Context, s *Secret) error
	Delete(ctx context.Context, id uuid.UUID) error

	ExpireSecret(ctx context.Context, id uuid.UUID) error
	GetExpiredSecrets(ctx context.Context, asOf time.Time) ([]Secret, error)
	IncrementRefreshFailureCount(ctx context.Context, id uuid.UUID) (int, error)
	ResetRefreshFailureCount(ctx context.Context, id uuid.UUID) error
}

// ItemRepository is the typed CRUD surface over Item rows, plus the
// upsert-by-natural-key and retention operations the Items repository needs.
type ItemRepository interface {
	// UpsertItem inserts a new Item or updates the mutable fields of the
	// existing row sharing (SourceID, ExternalID), returning its id either way.
	UpsertItem(ctx context.Context, item *Item) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	GetItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	UpdateState(ctx context.Context, id uuid.UUID, state ItemState) error
	UpdateExtraction(ctx context.Context, id uuid.UUID, status ContentStatus, extractedHTML, failedReason string) error
	UpdateCompleteness(ctx context.Context, id uuid.UUID, completeness Completeness) error
	DeleteForSource(ctx context.Context, sourceID uuid.UUID) error
	CleanupOld(ctx context.Context, olderThan time.Time) (int64, error)
}

// EventRepository is the typed CRUD surface over Event rows.
type EventRepository interface {
	Create(ctx context.Context, e *Event) error
	ListForItem(ctx context.Context, itemID uuid.UUID) ([]Event, error)
}

// GroupRepository is the typed CRUD surface over Group and SourceGroup rows.
type GroupRepository interface {
	Create(ctx context.Context, g *Group) error
	List(ctx context.Context) ([]Group, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddSource(ctx context.Context, sourceID, groupID uuid.UUID) error
	RemoveSource(ctx context.Context, sourceID, groupID uuid.UUID) error
	ListForSource(ctx context.Context, sourceID uuid.UUID) ([]Group, error)
}

// CustomViewRepository is the typed CRUD surface over CustomView rows.
type CustomViewRepository interface {
	Create(ctx context.Context, v *CustomView) error
	GetByID(ctx context.Context, id uuid.UUID) (*CustomView, error)
	List(ctx context.Context) ([]CustomView, error)
	Update(ctx context.Context, v *CustomView) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PreferenceRepository is the typed CRUD surface over the Preference bag.
type PreferenceRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Store is the single handle the scheduler, sync orchestrator, and command
// surface depend on for all persistence needs. It composes one repository
// per entity family, all backed by the same
// *gorm.DB connection (see db.go for how that connection is opened and
// serialized for SQLite's single-writer constraint).
type Store struct {
	db *gorm.DB

	Sources      SourceRepository
	Secrets      SecretRepository
	Items        ItemRepository
	Events       EventRepository
	Groups       GroupRepository
	CustomViews  CustomViewRepository
	Preferences  PreferenceRepository
}

// New wraps an already-opened, already-migrated *gorm.DB in a Store.
func New(db *gorm.DB) *Store {
	return &Store{
		db:          db,
		Sources:     &gormSourceRepository{db: db},
		Secrets:     &gormSecretRepository{db: db},
		Items:       &gormItemRepository{db: db},
		Events:      &gormEventRepository{db: db},
		Groups:      &gormGroupRepository{db: db},
		CustomViews: &gormCustomViewRepository{db: db},
		Preferences: &gormPreferenceRepository{db: db},
	}
}

// DeleteSourceCascade removes a Source together with its Items and Events,
// in a single transaction, so a removed Source leaves no orphaned rows.
func (s *Store) DeleteSourceCascade(ctx context.Context, sourceID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var itemIDs []uuid.UUID
		if err := tx.Model(&Item{}).Where("source_id = ?", sourceID).Pluck("id", &itemIDs).Error; err != nil {
			return err
		}
		if len(itemIDs) > 0 {
			if err := tx.Where("item_id IN ?", itemIDs).Delete(&Event{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("source_id = ?", sourceID).Delete(&Item{}).Error; err != nil {
			return err
		}
		if err := tx.Where("source_id = ?", sourceID).Delete(&SourceGroup{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", sourceID).Delete(&Source{}).Error; err != nil {
			return err
		}
		return nil
	})
}
