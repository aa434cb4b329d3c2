package authz

import (
	"context"
	"time"

	"github.com/dhawalhost/rowguard/pkg/permission"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Resource is a protected object registered with the service, together
// with its ordered access control list.
type Resource struct {
	ID        string    `json:"id" db:"id"`
	Type      string    `json:"type" db:"type"`
	Name      string    `json:"name" db:"name"`
	OwnerID   string    `json:"owner_id,omitempty" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Entries []ACLEntry `json:"acl"`
}

// ACL converts the stored entries into the evaluation form, preserving
// their order. This makes a loaded Resource usable directly as the
// resource argument of a permission check.
func (r Resource) ACL() permission.ACL {
	acl := make(permission.ACL, 0, len(r.Entries))
	for _, e := range r.Entries {
		acl = append(acl, e.toEntry())
	}
	return acl
}

// ACLEntry is the persisted form of a single access control rule. Position
// fixes the evaluation order.
type ACLEntry struct {
	ResourceID  string         `json:"-" db:"resource_id"`
	Position    int            `json:"-" db:"position"`
	Action      string         `json:"action" db:"action"`
	Principal   string         `json:"principal" db:"principal"`
	Permissions pq.StringArray `json:"permissions" db:"permissions"`
}

func (e ACLEntry) toEntry() permission.Entry {
	set := permission.NewPermissionSet(e.Permissions...)
	for _, name := range e.Permissions {
		if name == permission.AllPermissionsName {
			set = permission.AllPermissions
			break
		}
	}
	return permission.Entry{
		Action:      permission.Action(e.Action),
		Principal:   permission.Principal(e.Principal),
		Permissions: set,
	}
}

// Store defines resource and ACL storage operations.
type Store interface {
	CreateResource(ctx context.Context, r Resource) error
	GetResource(ctx context.Context, id string) (Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
	DeleteResource(ctx context.Context, id string) error

	// ReplaceACL swaps the full entry list of a resource atomically,
	// keeping the given order.
	ReplaceACL(ctx context.Context, resourceID string, entries []ACLEntry) error
	GetACL(ctx context.Context, resourceID string) ([]ACLEntry, error)

	Ping(ctx context.Context) error
}

type store struct {
	db *sqlx.DB
}

// NewStore creates a new resource store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) CreateResource(ctx context.Context, r Resource) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (id, type, name, owner_id) VALUES ($1, $2, $3, $4)`,
		r.ID, r.Type, r.Name, r.OwnerID)
	return err
}

func (s *store) GetResource(ctx context.Context, id string) (Resource, error) {
	var r Resource
	if err := s.db.GetContext(ctx, &r,
		`SELECT id, type, name, owner_id, created_at, updated_at FROM resources WHERE id = $1`, id); err != nil {
		return Resource{}, err
	}
	entries, err := s.GetACL(ctx, id)
	if err != nil {
		return Resource{}, err
	}
	r.Entries = entries
	return r, nil
}

func (s *store) ListResources(ctx context.Context) ([]Resource, error) {
	var resources []Resource
	err := s.db.SelectContext(ctx, &resources,
		`SELECT id, type, name, owner_id, created_at, updated_at FROM resources ORDER BY created_at`)
	return resources, err
}

func (s *store) DeleteResource(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	return err
}

func (s *store) ReplaceACL(ctx context.Context, resourceID string, entries []ACLEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM acl_entries WHERE resource_id = $1`, resourceID); err != nil {
		return err
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO acl_entries (resource_id, position, action, principal, permissions)
			 VALUES ($1, $2, $3, $4, $5)`,
			resourceID, i, e.Action, e.Principal, e.Permissions); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE resources SET updated_at = NOW() WHERE id = $1`, resourceID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *store) GetACL(ctx context.Context, resourceID string) ([]ACLEntry, error) {
	var entries []ACLEntry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT resource_id, position, action, principal, permissions
		 FROM acl_entries WHERE resource_id = $1 ORDER BY position`, resourceID)
	return entries, err
}

func (s *store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
