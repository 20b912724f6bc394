package audit_test

import (
	"context"
	"testing"

	"bar-pos/internal/audit"
	"bar-pos/internal/models"
	"bar-pos/internal/store"
)

func TestRecordWithoutActorIsNoop(t *testing.T) {
	s, _ := store.Open(context.Background(), store.NewMemoryPersister())
	r := audit.NewRecorder(s)

	l, err := r.Record(context.Background(), audit.ActionLogin, "", nil)
	if l != nil || err != nil {
		t.Fatalf("got %v, %v; want nil, nil", l, err)
	}
	if len(s.AuditLogs()) != 0 || len(s.Pending()) != 0 {
		t.Errorf("no-op record wrote to the store")
	}
}

func TestRecordSnapshotsActor(t *testing.T) {
	s, _ := store.Open(context.Background(), store.NewMemoryPersister())
	r := audit.NewRecorder(s)
	actor := &models.User{ID: "u1", Name: "Akinyi", Role: models.RoleAdmin, BusinessID: "b1"}

	l, err := r.Record(context.Background(), audit.ActionLogin, "User logged in", actor)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	actor.Name = "Renamed"
	if l.UserName != "Akinyi" || l.BusinessID != "b1" || l.ID == "" || l.Timestamp.IsZero() {
		t.Errorf("unexpected entry %+v", l)
	}
	stored, ok := s.AuditLog(l.ID)
	if !ok || stored.UserName != "Akinyi" {
		t.Errorf("stored entry %+v, %v", stored, ok)
	}
}

func TestTenantFiltering(t *testing.T) {
	ctx := context.Background()
	s, _ := store.Open(ctx, store.NewMemoryPersister())
	r := audit.NewRecorder(s)

	alice := &models.User{ID: "a", Name: "Alice", Role: models.RoleOwner, BusinessID: "b1"}
	bob := &models.User{ID: "b", Name: "Bob", Role: models.RoleOwner, BusinessID: "b2"}
	root := &models.User{ID: "r", Name: "Root", Role: models.RoleSuperAdmin}

	for _, u := range []*models.User{alice, bob, alice, root} {
		if _, err := r.Record(ctx, audit.ActionLogin, "", u); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	tests := []struct {
		name   string
		viewer *models.User
		want   int
		tenant string
	}{
		{"first tenant", alice, 2, "b1"},
		{"second tenant", bob, 1, "b2"},
		{"platform sees all", root, 4, ""},
		{"nobody", nil, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Visible(tt.viewer)
			if len(got) != tt.want {
				t.Fatalf("got %d entries, want %d", len(got), tt.want)
			}
			if tt.tenant == "" {
				return
			}
			for _, l := range got {
				if l.BusinessID != tt.tenant {
					t.Errorf("entry from %s leaked into %s", l.BusinessID, tt.tenant)
				}
			}
		})
	}

	if got := r.Visible(root); got[3].BusinessID != models.PlatformTenant {
		t.Errorf("platform entry tenant = %q", got[3].BusinessID)
	}
}
