package authz

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/dhawalhost/rowguard/pkg/permission"
	"github.com/lib/pq"
)

type stubStore struct {
	createResourceFn func(ctx context.Context, r Resource) error
	getResourceFn    func(ctx context.Context, id string) (Resource, error)
	listResourcesFn  func(ctx context.Context) ([]Resource, error)
	deleteResourceFn func(ctx context.Context, id string) error
	replaceACLFn     func(ctx context.Context, resourceID string, entries []ACLEntry) error
	getACLFn         func(ctx context.Context, resourceID string) ([]ACLEntry, error)
}

func (s *stubStore) CreateResource(ctx context.Context, r Resource) error {
	if s.createResourceFn == nil {
		panic("CreateResource called unexpectedly")
	}
	return s.createResourceFn(ctx, r)
}

func (s *stubStore) GetResource(ctx context.Context, id string) (Resource, error) {
	if s.getResourceFn == nil {
		panic("GetResource called unexpectedly")
	}
	return s.getResourceFn(ctx, id)
}

func (s *stubStore) ListResources(ctx context.Context) ([]Resource, error) {
	if s.listResourcesFn == nil {
		panic("ListResources called unexpectedly")
	}
	return s.listResourcesFn(ctx)
}

func (s *stubStore) DeleteResource(ctx context.Context, id string) error {
	if s.deleteResourceFn == nil {
		panic("DeleteResource called unexpectedly")
	}
	return s.deleteResourceFn(ctx, id)
}

func (s *stubStore) ReplaceACL(ctx context.Context, resourceID string, entries []ACLEntry) error {
	if s.replaceACLFn == nil {
		panic("ReplaceACL called unexpectedly")
	}
	return s.replaceACLFn(ctx, resourceID, entries)
}

func (s *stubStore) GetACL(ctx context.Context, resourceID string) ([]ACLEntry, error) {
	if s.getACLFn == nil {
		panic("GetACL called unexpectedly")
	}
	return s.getACLFn(ctx, resourceID)
}

func (s *stubStore) Ping(ctx context.Context) error { return nil }

func documentResource() Resource {
	return Resource{
		ID:   "doc-1",
		Type: "document",
		Name: "quarterly report",
		Entries: []ACLEntry{
			{Position: 0, Action: "Allow", Principal: "role:editor", Permissions: pq.StringArray{"view", "edit"}},
			{Position: 1, Action: "Deny", Principal: "system:everyone", Permissions: pq.StringArray{"edit"}},
			{Position: 2, Action: "Allow", Principal: "system:everyone", Permissions: pq.StringArray{"view"}},
		},
	}
}

func TestCheck(t *testing.T) {
	svc := NewService(&stubStore{
		getResourceFn: func(ctx context.Context, id string) (Resource, error) {
			return documentResource(), nil
		},
	}, nil)

	editor := permission.StaticPrincipals{"role:editor"}

	cases := []struct {
		name string
		user any
		perm string
		want bool
	}{
		{"editor can view", editor, "view", true},
		{"editor allow precedes blanket edit deny", editor, "edit", true},
		{"anonymous can view via everyone", nil, "view", true},
		{"anonymous cannot edit", nil, "edit", false},
		{"unknown permission denied", editor, "delete", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.Check(context.Background(), tc.user, tc.perm, "doc-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCheckUnknownResource(t *testing.T) {
	svc := NewService(&stubStore{
		getResourceFn: func(ctx context.Context, id string) (Resource, error) {
			return Resource{}, sql.ErrNoRows
		},
	}, nil)

	_, err := svc.Check(context.Background(), nil, "view", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPermissionMap(t *testing.T) {
	svc := NewService(&stubStore{
		getResourceFn: func(ctx context.Context, id string) (Resource, error) {
			return documentResource(), nil
		},
	}, nil)

	got, err := svc.PermissionMap(context.Background(), permission.StaticPrincipals{"role:editor"}, "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected view and edit only, got %v", got)
	}
	if !got["view"] || !got["edit"] {
		t.Fatalf("editor must hold both permissions: %v", got)
	}
}

func TestCreateResourceSeedsOwnerACL(t *testing.T) {
	var stored []ACLEntry
	stub := &stubStore{
		createResourceFn: func(ctx context.Context, r Resource) error {
			if r.ID == "" {
				t.Fatal("expected a generated resource id")
			}
			return nil
		},
		replaceACLFn: func(ctx context.Context, resourceID string, entries []ACLEntry) error {
			stored = entries
			return nil
		},
		getResourceFn: func(ctx context.Context, id string) (Resource, error) {
			return Resource{ID: id, Type: "document", Name: "n", OwnerID: "42", Entries: stored}, nil
		},
	}
	svc := NewService(stub, nil)

	r, err := svc.CreateResource(context.Background(), CreateResourceInput{
		Type: "document", Name: "n", OwnerID: "42",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(stored) != 1 {
		t.Fatalf("expected one seeded entry, got %d", len(stored))
	}
	if stored[0].Principal != "user:42" {
		t.Fatalf("unexpected owner principal: %s", stored[0].Principal)
	}
	if !permission.HasPermission(permission.StaticPrincipals{"user:42"}, "anything", r) {
		t.Fatal("owner must hold every permission on a freshly created resource")
	}
}

func TestCreateResourceRejectsBadInput(t *testing.T) {
	svc := NewService(&stubStore{}, nil)

	if _, err := svc.CreateResource(context.Background(), CreateResourceInput{Type: "document"}); err == nil {
		t.Fatal("expected error for missing name")
	}

	_, err := svc.CreateResource(context.Background(), CreateResourceInput{
		Type: "document", Name: "n",
		Entries: []ACLEntryInput{{Action: "Maybe", Principal: "role:editor", Permissions: []string{"view"}}},
	})
	if err == nil {
		t.Fatal("expected error for invalid action")
	}
}

func TestSetACLPreservesOrder(t *testing.T) {
	var stored []ACLEntry
	stub := &stubStore{
		getResourceFn: func(ctx context.Context, id string) (Resource, error) {
			return Resource{ID: id}, nil
		},
		replaceACLFn: func(ctx context.Context, resourceID string, entries []ACLEntry) error {
			stored = entries
			return nil
		},
	}
	svc := NewService(stub, nil)

	err := svc.SetACL(context.Background(), "doc-1", []ACLEntryInput{
		{Action: "Deny", Principal: "system:everyone", Permissions: []string{"view"}},
		{Action: "Allow", Principal: "role:admin", Permissions: []string{"view"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(stored) != 2 || stored[0].Position != 0 || stored[1].Position != 1 {
		t.Fatalf("entry order must be preserved via positions: %+v", stored)
	}
	if stored[0].Action != "Deny" {
		t.Fatal("first entry must stay first")
	}
}

func TestSetACLUnknownResource(t *testing.T) {
	svc := NewService(&stubStore{
		getResourceFn: func(ctx context.Context, id string) (Resource, error) {
			return Resource{}, sql.ErrNoRows
		},
	}, nil)

	err := svc.SetACL(context.Background(), "missing", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResourceACLConversion(t *testing.T) {
	r := Resource{Entries: []ACLEntry{
		{Action: "Allow", Principal: "role:admin", Permissions: pq.StringArray{"permissions:*"}},
	}}

	acl := r.ACL()
	if len(acl) != 1 {
		t.Fatalf("expected one entry, got %d", len(acl))
	}
	if !acl[0].Permissions.IsAll() {
		t.Fatal("the stored wildcard must convert to the universal permission set")
	}
	if !acl[0].Permissions.Contains("absolutely-anything") {
		t.Fatal("universal set must contain any name")
	}
}
