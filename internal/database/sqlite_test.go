package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"dms-go/internal/dms"
)

var testTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestDB creates a new in-memory database with migrations applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(MemoryPath)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertNode(t *testing.T, db *SQLiteDatabase, id, name string, parent *dms.Node, folder bool) *dms.Node {
	t.Helper()

	n := &dms.Node{
		ID:             id,
		Name:           name,
		IsFolder:       folder,
		OwnerID:        "u1",
		CreatedAt:      testTime,
		UpdatedAt:      testTime,
		LastAccessedAt: testTime,
		Metadata:       dms.Metadata{},
	}
	if parent != nil {
		n.ParentID = &parent.ID
		n.Path = parent.ChildPath()
	}
	if !folder {
		n.StorageKey = "u1/" + name
		n.InitialKey = n.StorageKey
		n.Size = 10
		n.Metadata[dms.MetaContentType] = "text/plain"
	}
	if err := db.InsertNode(context.Background(), n); err != nil {
		t.Fatalf("InsertNode(%s) error = %v", id, err)
	}
	return n
}

func TestSQLiteDatabase_Nodes(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns nil when missing", func(t *testing.T) {
		db := newTestDB(t)

		n, err := db.GetNode(ctx, "nope")
		if err != nil {
			t.Fatalf("GetNode() error = %v", err)
		}
		if n != nil {
			t.Errorf("GetNode() = %+v, want nil", n)
		}
	})

	t.Run("round trips every column", func(t *testing.T) {
		db := newTestDB(t)
		folder := insertNode(t, db, "f1", "Projects", nil, true)
		file := insertNode(t, db, "n1", "plan.txt", folder, false)

		got, err := db.GetNode(ctx, file.ID)
		if err != nil {
			t.Fatalf("GetNode() error = %v", err)
		}
		if got.ParentID == nil || *got.ParentID != "f1" {
			t.Errorf("ParentID = %v, want f1", got.ParentID)
		}
		if got.Path != "Projects" {
			t.Errorf("Path = %q, want Projects", got.Path)
		}
		if got.StorageKey != "u1/plan.txt" || got.Size != 10 {
			t.Errorf("content = (%q, %d), want (u1/plan.txt, 10)", got.StorageKey, got.Size)
		}
		if got.InitialKey != "u1/plan.txt" {
			t.Errorf("InitialKey = %q, want u1/plan.txt", got.InitialKey)
		}
		if !got.CreatedAt.Equal(testTime) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, testTime)
		}
		if got.ContentType() != "text/plain" {
			t.Errorf("ContentType() = %q, want text/plain", got.ContentType())
		}

		gotFolder, err := db.GetNode(ctx, folder.ID)
		if err != nil {
			t.Fatalf("GetNode() error = %v", err)
		}
		if !gotFolder.IsFolder || gotFolder.StorageKey != "" || gotFolder.ParentID != nil {
			t.Errorf("folder = %+v, want root folder without content", gotFolder)
		}
	})

	t.Run("find by name is scoped to parent", func(t *testing.T) {
		db := newTestDB(t)
		folder := insertNode(t, db, "f1", "Projects", nil, true)
		insertNode(t, db, "n1", "plan.txt", folder, false)

		atRoot, err := db.FindNodeByName(ctx, "u1", nil, "plan.txt")
		if err != nil {
			t.Fatalf("FindNodeByName() error = %v", err)
		}
		if atRoot != nil {
			t.Errorf("FindNodeByName(root) = %v, want nil", atRoot.ID)
		}

		inFolder, err := db.FindNodeByName(ctx, "u1", &folder.ID, "plan.txt")
		if err != nil {
			t.Fatalf("FindNodeByName() error = %v", err)
		}
		if inFolder == nil || inFolder.ID != "n1" {
			t.Errorf("FindNodeByName(folder) = %v, want n1", inFolder)
		}
	})

	t.Run("list orders folders first then by name", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "n1", "b.txt", nil, false)
		insertNode(t, db, "n2", "a.txt", nil, false)
		insertNode(t, db, "f1", "zeta", nil, true)
		insertNode(t, db, "f2", "alpha", nil, true)

		archived := false
		nodes, err := db.ListNodes(ctx, dms.NodeQuery{OwnerID: "u1", Root: true, Archived: &archived})
		if err != nil {
			t.Fatalf("ListNodes() error = %v", err)
		}
		got := names(nodes)
		want := []string{"alpha", "zeta", "a.txt", "b.txt"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("ListNodes() = %v, want %v", got, want)
		}
	})

	t.Run("list filters by path and archive state", func(t *testing.T) {
		db := newTestDB(t)
		folder := insertNode(t, db, "f1", "Projects", nil, true)
		insertNode(t, db, "n1", "keep.txt", folder, false)
		insertNode(t, db, "n2", "old.txt", folder, false)
		if _, err := db.SetNodeFlag(ctx, "n2", dms.FlagArchived, true, testTime.Add(time.Minute)); err != nil {
			t.Fatalf("SetNodeFlag() error = %v", err)
		}

		path := "Projects"
		live := false
		nodes, err := db.ListNodes(ctx, dms.NodeQuery{OwnerID: "u1", Path: &path, Archived: &live})
		if err != nil {
			t.Fatalf("ListNodes() error = %v", err)
		}
		if got := names(nodes); len(got) != 1 || got[0] != "keep.txt" {
			t.Errorf("live listing = %v, want [keep.txt]", got)
		}

		archived := true
		nodes, err = db.ListNodes(ctx, dms.NodeQuery{OwnerID: "u1", Archived: &archived, Order: dms.OrderRecentlyUpdated})
		if err != nil {
			t.Fatalf("ListNodes() error = %v", err)
		}
		if got := names(nodes); len(got) != 1 || got[0] != "old.txt" {
			t.Errorf("archive listing = %v, want [old.txt]", got)
		}
	})

	t.Run("set flag only moves updated_at on change", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "n1", "a.txt", nil, false)
		later := testTime.Add(time.Hour)

		ok, err := db.SetNodeFlag(ctx, "n1", dms.FlagFavorite, false, later)
		if err != nil || !ok {
			t.Fatalf("SetNodeFlag(no-op) = %v, %v; want true, nil", ok, err)
		}
		n, _ := db.GetNode(ctx, "n1")
		if !n.UpdatedAt.Equal(testTime) {
			t.Errorf("UpdatedAt after no-op = %v, want %v", n.UpdatedAt, testTime)
		}

		ok, err = db.SetNodeFlag(ctx, "n1", dms.FlagFavorite, true, later)
		if err != nil || !ok {
			t.Fatalf("SetNodeFlag() = %v, %v; want true, nil", ok, err)
		}
		n, _ = db.GetNode(ctx, "n1")
		if !n.IsFavorite || !n.UpdatedAt.Equal(later) {
			t.Errorf("after set: favorite=%v updated=%v, want true %v", n.IsFavorite, n.UpdatedAt, later)
		}

		ok, err = db.SetNodeFlag(ctx, "missing", dms.FlagFavorite, true, later)
		if err != nil || ok {
			t.Errorf("SetNodeFlag(missing) = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("update content replaces key, size and metadata", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "n1", "a.txt", nil, false)
		md := dms.Metadata{dms.MetaContentType: "text/markdown", "pages": float64(3)}

		ok, err := db.UpdateNodeContent(ctx, "n1", "u1/a.txt@abc", 42, md, testTime.Add(time.Minute))
		if err != nil || !ok {
			t.Fatalf("UpdateNodeContent() = %v, %v", ok, err)
		}
		n, _ := db.GetNode(ctx, "n1")
		if n.StorageKey != "u1/a.txt@abc" || n.Size != 42 {
			t.Errorf("content = (%q, %d), want (u1/a.txt@abc, 42)", n.StorageKey, n.Size)
		}
		if n.InitialKey != "u1/a.txt" {
			t.Errorf("InitialKey = %q, want u1/a.txt unchanged", n.InitialKey)
		}
		if n.Metadata["pages"] != float64(3) || n.ContentType() != "text/markdown" {
			t.Errorf("Metadata = %v", n.Metadata)
		}
	})

	t.Run("update content never touches folders", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "f1", "Projects", nil, true)

		ok, err := db.UpdateNodeContent(ctx, "f1", "k", 1, nil, testTime)
		if err != nil {
			t.Fatalf("UpdateNodeContent() error = %v", err)
		}
		if ok {
			t.Error("UpdateNodeContent(folder) matched a row")
		}
	})

	t.Run("touch stamps last access only", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "n1", "a.txt", nil, false)
		later := testTime.Add(24 * time.Hour)

		if err := db.TouchNode(ctx, "n1", later); err != nil {
			t.Fatalf("TouchNode() error = %v", err)
		}
		n, _ := db.GetNode(ctx, "n1")
		if !n.LastAccessedAt.Equal(later) || !n.UpdatedAt.Equal(testTime) {
			t.Errorf("LastAccessedAt=%v UpdatedAt=%v", n.LastAccessedAt, n.UpdatedAt)
		}
	})

	t.Run("delete of non-empty folder is rejected", func(t *testing.T) {
		db := newTestDB(t)
		folder := insertNode(t, db, "f1", "Projects", nil, true)
		insertNode(t, db, "n1", "plan.txt", folder, false)

		if err := db.DeleteNode(ctx, "f1"); err == nil {
			t.Error("DeleteNode(non-empty folder) expected foreign key error")
		}

		ids, err := db.ListChildIDs(ctx, "f1")
		if err != nil {
			t.Fatalf("ListChildIDs() error = %v", err)
		}
		if len(ids) != 1 || ids[0] != "n1" {
			t.Errorf("ListChildIDs() = %v, want [n1]", ids)
		}
	})
}

func TestSQLiteDatabase_Shares(t *testing.T) {
	ctx := context.Background()

	newShare := func(id, with string, level dms.PermissionLevel, at time.Time) *dms.Share {
		return &dms.Share{ID: id, FileID: "n1", OwnerID: "u1", SharedWithID: with, PermissionLevel: level, CreatedAt: at, UpdatedAt: at}
	}

	t.Run("upsert keeps one row per grantee", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "n1", "a.txt", nil, false)

		first, err := db.UpsertShare(ctx, newShare("s1", "u2", dms.PermissionView, testTime))
		if err != nil {
			t.Fatalf("UpsertShare() error = %v", err)
		}
		later := testTime.Add(time.Hour)
		second, err := db.UpsertShare(ctx, newShare("s2", "u2", dms.PermissionEdit, later))
		if err != nil {
			t.Fatalf("UpsertShare() error = %v", err)
		}

		if second.ID != first.ID {
			t.Errorf("second upsert ID = %q, want original %q", second.ID, first.ID)
		}
		if second.PermissionLevel != dms.PermissionEdit {
			t.Errorf("PermissionLevel = %v, want edit", second.PermissionLevel)
		}
		if !second.CreatedAt.Equal(testTime) || !second.UpdatedAt.Equal(later) {
			t.Errorf("timestamps = (%v, %v), want (%v, %v)", second.CreatedAt, second.UpdatedAt, testTime, later)
		}

		shares, err := db.ListSharesForFile(ctx, "n1")
		if err != nil {
			t.Fatalf("ListSharesForFile() error = %v", err)
		}
		if len(shares) != 1 {
			t.Errorf("len(shares) = %d, want 1", len(shares))
		}
	})

	t.Run("find, update and delete", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "n1", "a.txt", nil, false)
		if _, err := db.UpsertShare(ctx, newShare("s1", "u2", dms.PermissionView, testTime)); err != nil {
			t.Fatalf("UpsertShare() error = %v", err)
		}

		found, err := db.FindShare(ctx, "n1", "u2")
		if err != nil || found == nil {
			t.Fatalf("FindShare() = %v, %v", found, err)
		}
		missing, err := db.FindShare(ctx, "n1", "u3")
		if err != nil || missing != nil {
			t.Errorf("FindShare(u3) = %v, %v; want nil, nil", missing, err)
		}

		ok, err := db.UpdateSharePermission(ctx, "s1", dms.PermissionComment, testTime)
		if err != nil || !ok {
			t.Fatalf("UpdateSharePermission() = %v, %v", ok, err)
		}
		got, _ := db.GetShare(ctx, "s1")
		if got.PermissionLevel != dms.PermissionComment {
			t.Errorf("PermissionLevel = %v, want comment", got.PermissionLevel)
		}

		ok, err = db.UpdateSharePermission(ctx, "nope", dms.PermissionEdit, testTime)
		if err != nil || ok {
			t.Errorf("UpdateSharePermission(unknown) = %v, %v; want false, nil", ok, err)
		}

		ok, err = db.DeleteShare(ctx, "s1")
		if err != nil || !ok {
			t.Fatalf("DeleteShare() = %v, %v", ok, err)
		}
		ok, err = db.DeleteShare(ctx, "s1")
		if err != nil || ok {
			t.Errorf("second DeleteShare() = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("list for actor", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "n1", "a.txt", nil, false)
		if _, err := db.UpsertShare(ctx, newShare("s1", "u2", dms.PermissionView, testTime)); err != nil {
			t.Fatalf("UpsertShare() error = %v", err)
		}
		if _, err := db.UpsertShare(ctx, newShare("s2", "u3", dms.PermissionEdit, testTime)); err != nil {
			t.Fatalf("UpsertShare() error = %v", err)
		}

		shares, err := db.ListSharesForActor(ctx, "u3")
		if err != nil {
			t.Fatalf("ListSharesForActor() error = %v", err)
		}
		if len(shares) != 1 || shares[0].ID != "s2" {
			t.Errorf("ListSharesForActor(u3) = %v, want [s2]", shares)
		}
	})

	t.Run("deleting the node removes its shares", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "n1", "a.txt", nil, false)
		if _, err := db.UpsertShare(ctx, newShare("s1", "u2", dms.PermissionView, testTime)); err != nil {
			t.Fatalf("UpsertShare() error = %v", err)
		}

		if err := db.DeleteNode(ctx, "n1"); err != nil {
			t.Fatalf("DeleteNode() error = %v", err)
		}
		got, err := db.GetShare(ctx, "s1")
		if err != nil || got != nil {
			t.Errorf("GetShare() after node delete = %v, %v; want nil, nil", got, err)
		}
	})
}

func TestSQLiteDatabase_Versions(t *testing.T) {
	ctx := context.Background()

	t.Run("numbers start at one and increase", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "n1", "a.txt", nil, false)

		for i := 1; i <= 3; i++ {
			v, err := db.AppendVersion(ctx, &dms.Version{
				ID: fmt.Sprintf("v%d", i), FileID: "n1", StorageKey: fmt.Sprintf("k%d", i), CreatedBy: "u1", CreatedAt: testTime,
			})
			if err != nil {
				t.Fatalf("AppendVersion() error = %v", err)
			}
			if v.VersionNumber != int64(i) {
				t.Errorf("VersionNumber = %d, want %d", v.VersionNumber, i)
			}
		}

		versions, err := db.ListVersions(ctx, "n1")
		if err != nil {
			t.Fatalf("ListVersions() error = %v", err)
		}
		if len(versions) != 3 || versions[0].VersionNumber != 3 || versions[2].VersionNumber != 1 {
			t.Errorf("ListVersions() not in descending order: %v", versions)
		}
	})

	t.Run("numbering is per file", func(t *testing.T) {
		db := newTestDB(t)
		insertNode(t, db, "n1", "a.txt", nil, false)
		insertNode(t, db, "n2", "b.txt", nil, false)

		if _, err := db.AppendVersion(ctx, &dms.Version{ID: "v1", FileID: "n1", StorageKey: "k", CreatedAt: testTime}); err != nil {
			t.Fatalf("AppendVersion() error = %v", err)
		}
		v, err := db.AppendVersion(ctx, &dms.Version{ID: "v2", FileID: "n2", StorageKey: "k", CreatedAt: testTime})
		if err != nil {
			t.Fatalf("AppendVersion() error = %v", err)
		}
		if v.VersionNumber != 1 {
			t.Errorf("first version of n2 = %d, want 1", v.VersionNumber)
		}
	})

	t.Run("unknown file is rejected", func(t *testing.T) {
		db := newTestDB(t)

		_, err := db.AppendVersion(ctx, &dms.Version{ID: "v1", FileID: "missing", StorageKey: "k", CreatedAt: testTime})
		if err == nil {
			t.Error("AppendVersion(missing file) expected error")
		}
	})

	t.Run("get returns nil when missing", func(t *testing.T) {
		db := newTestDB(t)

		v, err := db.GetVersion(ctx, "nope")
		if err != nil || v != nil {
			t.Errorf("GetVersion() = %v, %v; want nil, nil", v, err)
		}
	})

	t.Run("concurrent appends get distinct gapless numbers", func(t *testing.T) {
		db, err := NewSQLiteDatabase(filepath.Join(t.TempDir(), "meta.db"))
		if err != nil {
			t.Fatalf("NewSQLiteDatabase() error = %v", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
		insertNode(t, db, "n1", "a.txt", nil, false)

		const writers = 12
		var wg sync.WaitGroup
		numbers := make([]int64, writers)
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := db.AppendVersion(ctx, &dms.Version{
					ID: fmt.Sprintf("v%d", i), FileID: "n1", StorageKey: fmt.Sprintf("k%d", i), CreatedBy: "u1", CreatedAt: testTime,
				})
				if err != nil {
					errs[i] = err
					return
				}
				numbers[i] = v.VersionNumber
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("writer %d: %v", i, err)
			}
		}
		sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
		for i, n := range numbers {
			if n != int64(i+1) {
				t.Fatalf("numbers = %v, want 1..%d", numbers, writers)
			}
		}
	})
}

func TestSQLiteDatabase_Actors(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if a, err := db.FindActor(ctx, "u1"); err != nil || a != nil {
		t.Fatalf("FindActor(unknown) = %v, %v; want nil, nil", a, err)
	}

	if err := db.UpsertActor(ctx, dms.Actor{ID: "u1", Email: "ada@example.com"}, testTime); err != nil {
		t.Fatalf("UpsertActor() error = %v", err)
	}
	if err := db.UpsertActor(ctx, dms.Actor{ID: "u1", Email: "ada@example.com", DisplayName: "Ada"}, testTime); err != nil {
		t.Fatalf("UpsertActor() error = %v", err)
	}

	a, err := db.FindActor(ctx, "u1")
	if err != nil {
		t.Fatalf("FindActor() error = %v", err)
	}
	if a.DisplayName != "Ada" || a.Email != "ada@example.com" {
		t.Errorf("FindActor() = %+v", a)
	}

	all, err := db.ListActors(ctx)
	if err != nil {
		t.Fatalf("ListActors() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(ListActors()) = %d, want 1", len(all))
	}
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	first, err := db.CreateOperation(ctx, "upload", "report.docx", "u1", testTime)
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	second, err := db.CreateOperation(ctx, "rm", "n1", "u1", testTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("operation ids not increasing: %d then %d", first.ID, second.ID)
	}

	if err := db.FinishOperation(ctx, first.ID, "success", testTime.Add(time.Second)); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}
	if err := db.FinishOperation(ctx, 999, "success", testTime); err == nil {
		t.Error("FinishOperation(unknown) expected error")
	}

	ops, err := db.ListOperations(ctx, 10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 || ops[0].ID != second.ID {
		t.Fatalf("ListOperations() = %v, want newest first", ops)
	}
	if ops[0].FinishedAt != nil || ops[0].Status != "pending" {
		t.Errorf("unfinished op = %+v", ops[0])
	}
	if ops[1].FinishedAt == nil || ops[1].Status != "success" {
		t.Errorf("finished op = %+v", ops[1])
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	insertNode(t, db, "n1", "a.txt", nil, false)

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	if err := db.BackupTo(ctx, dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		t.Fatalf("snapshot missing or empty: %v", err)
	}

	copyDB, err := NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer copyDB.Close()

	if err := copyDB.CheckMigrations(); err != nil {
		t.Errorf("snapshot CheckMigrations() = %v", err)
	}
	n, err := copyDB.GetNode(ctx, "n1")
	if err != nil || n == nil {
		t.Errorf("snapshot GetNode() = %v, %v", n, err)
	}
}

func TestSQLiteDatabase_Schema(t *testing.T) {
	db := newTestDB(t)

	schema, err := db.Schema(context.Background())
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	for _, table := range []string{"CREATE TABLE nodes", "CREATE TABLE shares", "CREATE TABLE versions"} {
		if !strings.Contains(schema, table) {
			t.Errorf("Schema() missing %q", table)
		}
	}
	if strings.Contains(schema, "schema_migrations") {
		t.Error("Schema() should not include the migrations table")
	}
}

func names(nodes []*dms.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}
