package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dhawalhost/rowguard/pkg/observability"
	"github.com/dhawalhost/rowguard/pkg/permission"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a resource id does not exist.
var ErrNotFound = errors.New("resource not found")

// CreateResourceInput describes a resource to register.
type CreateResourceInput struct {
	Type    string
	Name    string
	OwnerID string
	Entries []ACLEntryInput
}

// ACLEntryInput is one ACL rule as supplied by callers.
type ACLEntryInput struct {
	Action      string
	Principal   string
	Permissions []string
}

// Service defines the authorization service operations.
type Service interface {
	CreateResource(ctx context.Context, input CreateResourceInput) (Resource, error)
	GetResource(ctx context.Context, id string) (Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
	DeleteResource(ctx context.Context, id string) error
	SetACL(ctx context.Context, id string, entries []ACLEntryInput) error

	// Check decides whether the user holds the permission on the stored
	// resource. A false result is a decision, not an error.
	Check(ctx context.Context, user any, perm, resourceID string) (bool, error)
	// PermissionMap evaluates every permission named in the resource's
	// ACL for the user.
	PermissionMap(ctx context.Context, user any, resourceID string) (map[string]bool, error)

	HealthCheck(ctx context.Context) (bool, error)
}

type service struct {
	store   Store
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewService creates a new authorization service. metrics may be nil in
// tests.
func NewService(store Store, metrics *observability.Metrics) Service {
	return &service{
		store:   store,
		metrics: metrics,
		tracer:  observability.Tracer("authz"),
	}
}

func (s *service) CreateResource(ctx context.Context, input CreateResourceInput) (Resource, error) {
	if input.Type == "" || input.Name == "" {
		return Resource{}, fmt.Errorf("resource type and name are required")
	}

	entries, err := toACLEntries(input.Entries)
	if err != nil {
		return Resource{}, err
	}
	// A fresh resource with no rules would deny everyone, including its
	// owner. Seed an owner entry instead.
	if len(entries) == 0 && input.OwnerID != "" {
		entries = []ACLEntry{{
			Action:      string(permission.Allow),
			Principal:   "user:" + input.OwnerID,
			Permissions: pq.StringArray{permission.AllPermissionsName},
		}}
	}

	r := Resource{
		ID:      uuid.NewString(),
		Type:    input.Type,
		Name:    input.Name,
		OwnerID: input.OwnerID,
	}
	if err := s.store.CreateResource(ctx, r); err != nil {
		return Resource{}, fmt.Errorf("failed to create resource: %w", err)
	}
	if len(entries) > 0 {
		if err := s.store.ReplaceACL(ctx, r.ID, entries); err != nil {
			return Resource{}, fmt.Errorf("failed to store acl: %w", err)
		}
	}
	return s.GetResource(ctx, r.ID)
}

func (s *service) GetResource(ctx context.Context, id string) (Resource, error) {
	r, err := s.store.GetResource(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Resource{}, ErrNotFound
	}
	if err != nil {
		return Resource{}, fmt.Errorf("failed to load resource: %w", err)
	}
	return r, nil
}

func (s *service) ListResources(ctx context.Context) ([]Resource, error) {
	return s.store.ListResources(ctx)
}

func (s *service) DeleteResource(ctx context.Context, id string) error {
	return s.store.DeleteResource(ctx, id)
}

func (s *service) SetACL(ctx context.Context, id string, inputs []ACLEntryInput) error {
	entries, err := toACLEntries(inputs)
	if err != nil {
		return err
	}
	if _, err := s.GetResource(ctx, id); err != nil {
		return err
	}
	if err := s.store.ReplaceACL(ctx, id, entries); err != nil {
		return fmt.Errorf("failed to store acl: %w", err)
	}
	return nil
}

func (s *service) Check(ctx context.Context, user any, perm, resourceID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "authz.Check", trace.WithAttributes(
		attribute.String("authz.permission", perm),
		attribute.String("authz.resource_id", resourceID),
	))
	defer span.End()

	r, err := s.GetResource(ctx, resourceID)
	if err != nil {
		return false, err
	}

	allowed := permission.HasPermission(user, perm, r)
	span.SetAttributes(attribute.Bool("authz.allowed", allowed))
	if s.metrics != nil {
		s.metrics.RecordDecision(perm, allowed)
	}
	return allowed, nil
}

func (s *service) PermissionMap(ctx context.Context, user any, resourceID string) (map[string]bool, error) {
	r, err := s.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return permission.ListPermissions(user, r), nil
}

func (s *service) HealthCheck(ctx context.Context) (bool, error) {
	if err := s.store.Ping(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func toACLEntries(inputs []ACLEntryInput) ([]ACLEntry, error) {
	entries := make([]ACLEntry, 0, len(inputs))
	for i, in := range inputs {
		if in.Action != string(permission.Allow) && in.Action != string(permission.Deny) {
			return nil, fmt.Errorf("entry %d: action must be %s or %s", i, permission.Allow, permission.Deny)
		}
		if in.Principal == "" {
			return nil, fmt.Errorf("entry %d: principal is required", i)
		}
		if len(in.Permissions) == 0 {
			return nil, fmt.Errorf("entry %d: at least one permission is required", i)
		}
		entries = append(entries, ACLEntry{
			Position:    i,
			Action:      in.Action,
			Principal:   in.Principal,
			Permissions: pq.StringArray(in.Permissions),
		})
	}
	return entries, nil
}
