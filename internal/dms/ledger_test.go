package dms_test

import (
	"context"
	"errors"
	"testing"

	"dms-go/internal/dms"
	"dms-go/internal/testutil"
)

func TestLedger_Share(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("resharing updates the level and keeps the id", func(t *testing.T) {
		h := testutil.NewHarness(t)
		node := upload(t, h, "a.txt", nil, "a")

		first, err := h.Ledger.Share(ctx, node.ID, "alice", "bob", dms.PermissionView)
		if err != nil {
			t.Fatalf("Share() error = %v", err)
		}
		second, err := h.Ledger.Share(ctx, node.ID, "alice", "bob", dms.PermissionEdit)
		if err != nil {
			t.Fatalf("second Share() error = %v", err)
		}

		if second.ID != first.ID {
			t.Errorf("share id changed from %s to %s", first.ID, second.ID)
		}
		if second.PermissionLevel != dms.PermissionEdit {
			t.Errorf("PermissionLevel = %v, want edit", second.PermissionLevel)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("CreatedAt changed from %v to %v", first.CreatedAt, second.CreatedAt)
		}

		shares, err := h.Ledger.ListShares(ctx, node.ID)
		if err != nil {
			t.Fatalf("ListShares() error = %v", err)
		}
		if len(shares) != 1 {
			t.Fatalf("len(ListShares()) = %d, want 1", len(shares))
		}
	})

	t.Run("validation", func(t *testing.T) {
		h := testutil.NewHarness(t)
		node := upload(t, h, "a.txt", nil, "a")

		tests := []struct {
			name   string
			fileID string
			with   string
			level  dms.PermissionLevel
		}{
			{"empty file", "", "bob", dms.PermissionView},
			{"empty grantee", node.ID, "", dms.PermissionView},
			{"owner", node.ID, "alice", dms.PermissionView},
			{"zero level", node.ID, "bob", 0},
			{"unknown level", node.ID, "bob", 9},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.Ledger.Share(ctx, tt.fileID, "alice", tt.with, tt.level)
				if !errors.Is(err, dms.ErrValidation) {
					t.Errorf("Share() error = %v, want validation error", err)
				}
			})
		}
	})

	t.Run("update and remove unknown share", func(t *testing.T) {
		h := testutil.NewHarness(t)
		if err := h.Ledger.UpdatePermission(ctx, "missing", dms.PermissionView); !errors.Is(err, dms.ErrNotFound) {
			t.Errorf("UpdatePermission() error = %v, want not found", err)
		}
		if err := h.Ledger.Remove(ctx, "missing"); !errors.Is(err, dms.ErrNotFound) {
			t.Errorf("Remove() error = %v, want not found", err)
		}
	})
}

func TestLedger_HasPermission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := testutil.NewHarness(t)

	// alice: /team (edit for bob) /team/plan.txt (view for bob override)
	//        /team/notes.txt, /private.txt
	// bob owns /team/bob.txt inside alice's folder.
	team := mkdir(t, h, "team", nil)
	plan := upload(t, h, "plan.txt", &team.ID, "p")
	notes := upload(t, h, "notes.txt", &team.ID, "n")
	private := upload(t, h, "private.txt", nil, "x")

	if _, err := h.Ledger.Share(ctx, team.ID, "alice", "bob", dms.PermissionEdit); err != nil {
		t.Fatalf("Share() error = %v", err)
	}
	if _, err := h.Ledger.Share(ctx, plan.ID, "alice", "bob", dms.PermissionView); err != nil {
		t.Fatalf("Share() error = %v", err)
	}

	h.ActAs(testutil.Bob)
	bobs := upload(t, h, "bob.txt", &team.ID, "b")

	tests := []struct {
		name     string
		nodeID   string
		actor    string
		required dms.PermissionLevel
		want     bool
	}{
		{"owner of node", private.ID, "alice", dms.PermissionEdit, true},
		{"stranger", private.ID, "bob", dms.PermissionView, false},
		{"folder grant covers child", notes.ID, "bob", dms.PermissionEdit, true},
		{"file grant overrides folder grant", plan.ID, "bob", dms.PermissionEdit, false},
		{"file grant still allows view", plan.ID, "bob", dms.PermissionView, true},
		{"comment satisfied by edit", team.ID, "bob", dms.PermissionComment, true},
		{"ancestor owner", bobs.ID, "alice", dms.PermissionEdit, true},
		{"no grant for third actor", notes.ID, "carol", dms.PermissionView, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Ledger.HasPermission(ctx, tt.nodeID, tt.actor, tt.required)
			if err != nil {
				t.Fatalf("HasPermission() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HasPermission() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("missing node", func(t *testing.T) {
		if _, err := h.Ledger.HasPermission(ctx, "missing", "bob", dms.PermissionView); !errors.Is(err, dms.ErrNotFound) {
			t.Errorf("HasPermission() error = %v, want not found", err)
		}
	})
}

func TestLedger_ListSharedWith(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := testutil.NewHarness(t)

	a := upload(t, h, "a.txt", nil, "a")
	b := upload(t, h, "b.txt", nil, "b")
	if _, err := h.Ledger.Share(ctx, a.ID, "alice", "bob", dms.PermissionView); err != nil {
		t.Fatalf("Share() error = %v", err)
	}
	sb, err := h.Ledger.Share(ctx, b.ID, "alice", "bob", dms.PermissionComment)
	if err != nil {
		t.Fatalf("Share() error = %v", err)
	}

	got, err := h.Ledger.ListSharedWith(ctx, "bob")
	if err != nil {
		t.Fatalf("ListSharedWith() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(ListSharedWith()) = %d, want 2", len(got))
	}
	// most recently granted first
	if got[0].ID != b.ID || got[0].ShareID != sb.ID {
		t.Errorf("first = %s (share %s), want %s (share %s)", got[0].ID, got[0].ShareID, b.ID, sb.ID)
	}
	if got[0].PermissionLevel != dms.PermissionComment || got[0].SharedBy != "alice" {
		t.Errorf("first grant = %v by %s", got[0].PermissionLevel, got[0].SharedBy)
	}
}
