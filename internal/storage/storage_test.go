package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"imdex/internal/models"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// entry is a minimal catalog row.
func entry(path string, h uint64, group int, score float64) *models.ImageInfo {
	return &models.ImageInfo{
		Path:     path,
		Hash:     models.NewHash(h),
		Width:    100,
		Height:   100,
		Format:   "jpeg",
		FileSize: 1000,
		ModTime:  time.Unix(1700000000, 0),
		Score:    score,
		GroupID:  group,
	}
}

func TestNewStorage_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "catalog.db")
	if Exists(path) {
		t.Fatal("database exists before NewStorage")
	}

	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	defer store.Close()

	if store.Path() != path {
		t.Errorf("Path = %s, want %s", store.Path(), path)
	}
	if !Exists(path) {
		t.Error("database file not created")
	}
}

func TestCommit_RoundTrip(t *testing.T) {
	store := openTestStorage(t)

	jpeg := &models.ImageInfo{
		Path: "/photos/beach.jpg", Hash: models.NewHash(12345), FileHash: "abc123",
		Width: 1920, Height: 1080, Format: "jpeg", FileSize: 1024000,
		ModTime: time.Unix(1700000000, 0), HasExif: true, Score: 2073600,
	}
	png := entry("/photos/logo.png", 67890, 0, 480000)
	if err := store.Commit(context.Background(), Changeset{Upserts: []*models.ImageInfo{png, jpeg}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	got, err := store.GetImage(jpeg.Path)
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if got.Hash != jpeg.Hash || got.FileHash != jpeg.FileHash {
		t.Errorf("hashes = %s/%s, want %s/%s", got.Hash.Hex(), got.FileHash, jpeg.Hash.Hex(), jpeg.FileHash)
	}
	if got.Width != 1920 || got.Height != 1080 || !got.HasExif || got.Score != jpeg.Score {
		t.Errorf("metadata = %+v", got)
	}

	n, err := store.CountImages()
	if err != nil {
		t.Fatalf("CountImages failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountImages = %d, want 2", n)
	}
}

func TestCommit_Upsert(t *testing.T) {
	store := openTestStorage(t)

	img := entry("/x.jpg", 1, 0, 10000)
	if err := store.Commit(context.Background(), Changeset{Upserts: []*models.ImageInfo{img}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	img.Width, img.Score = 200, 40000
	if err := store.Commit(context.Background(), Changeset{Upserts: []*models.ImageInfo{img}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	all, err := store.GetAllImages()
	if err != nil {
		t.Fatalf("GetAllImages failed: %v", err)
	}
	if len(all) != 1 || all[0].Width != 200 || all[0].Score != 40000 {
		t.Errorf("after upsert = %+v", all)
	}
}

func TestGroups(t *testing.T) {
	store := openTestStorage(t)

	images := []*models.ImageInfo{
		entry("/g1a.jpg", 1, 0, 9000),
		entry("/g1b.jpg", 1, 0, 10000),
		entry("/g2a.jpg", 2, 0, 48000),
		entry("/g2b.jpg", 2, 0, 40000),
		entry("/lone.jpg", 3, 0, 10000),
	}
	if err := store.Commit(context.Background(), Changeset{Upserts: images}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if n, err := store.GetGroupCount(); err != nil || n != 0 {
		t.Fatalf("GetGroupCount = %d, %v, want 0", n, err)
	}

	err := store.UpdateGroups([]*models.DuplicateGroup{
		{ID: 1, Images: images[0:2]},
		{ID: 2, Images: images[2:4]},
	})
	if err != nil {
		t.Fatalf("UpdateGroups failed: %v", err)
	}

	if n, err := store.GetGroupCount(); err != nil || n != 2 {
		t.Errorf("GetGroupCount = %d, %v, want 2", n, err)
	}

	members, err := store.GetImagesByGroupID(1)
	if err != nil {
		t.Fatalf("GetImagesByGroupID failed: %v", err)
	}
	if len(members) != 2 || members[0].Path != "/g1b.jpg" {
		t.Errorf("group 1 = %v, want g1b first (higher score)", members)
	}

	groups, err := store.GetDuplicateGroups()
	if err != nil {
		t.Fatalf("GetDuplicateGroups failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if groups[1].Keep.Path != "/g2a.jpg" || len(groups[1].Remove) != 1 {
		t.Errorf("group 2 keep = %s, remove = %d", groups[1].Keep.Path, len(groups[1].Remove))
	}

	// a later run replaces earlier assignments
	if err := store.UpdateGroups(nil); err != nil {
		t.Fatalf("UpdateGroups failed: %v", err)
	}
	if n, _ := store.GetGroupCount(); n != 0 {
		t.Errorf("GetGroupCount after reset = %d, want 0", n)
	}
}

func TestCommit_Deletes(t *testing.T) {
	store := openTestStorage(t)

	if err := store.Commit(context.Background(), Changeset{Upserts: []*models.ImageInfo{entry("/keep.jpg", 1, 0, 1), entry("/drop.jpg", 2, 0, 1)}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := store.Commit(context.Background(), Changeset{Deletes: []string{"/drop.jpg"}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	all, err := store.GetAllImages()
	if err != nil {
		t.Fatalf("GetAllImages failed: %v", err)
	}
	if len(all) != 1 || all[0].Path != "/keep.jpg" {
		t.Errorf("remaining = %v", all)
	}
}

func TestRecordScan(t *testing.T) {
	store := openTestStorage(t)

	if err := store.RecordScan("/photos", 100, 10, 25); err != nil {
		t.Fatalf("RecordScan failed: %v", err)
	}

	var (
		folder              string
		total, groups, dups int
	)
	row := store.db.QueryRow("SELECT folder, total_images, total_groups, total_duplicates FROM scan_history")
	if err := row.Scan(&folder, &total, &groups, &dups); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if folder != "/photos" || total != 100 || groups != 10 || dups != 25 {
		t.Errorf("scan_history = (%s, %d, %d, %d)", folder, total, groups, dups)
	}
}

func TestMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	for run := 0; run < 2; run++ {
		store, err := NewStorage(path)
		if err != nil {
			t.Fatalf("NewStorage (run %d) failed: %v", run, err)
		}
		if v := store.getSchemaVersion(); v != schemaVersion {
			t.Errorf("schema version = %d, want %d", v, schemaVersion)
		}
		for _, c := range []struct{ table, column string }{
			{"images", "file_hash"},
			{"settings", "value"},
			{"index_snapshot", "data"},
		} {
			if !store.columnExists(c.table, c.column) {
				t.Errorf("missing %s.%s", c.table, c.column)
			}
		}
		store.Close()
	}
}

func TestCommit_ModTimeAndWideHash(t *testing.T) {
	store := openTestStorage(t)

	modTime := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)
	wide := models.NewHash(0xFFFFFFFFFFFFFFFF, 0x1, 0x8000000000000000, 0)
	images := []*models.ImageInfo{{
		Path: "/wide.png", Hash: wide, Width: 1, Height: 1, Format: "png", ModTime: modTime, Score: 1,
	}}
	if err := store.Commit(context.Background(), Changeset{Upserts: images}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	img, err := store.GetImage("/wide.png")
	if err != nil {
		t.Fatalf("GetImage failed: %v", err)
	}
	if img.Hash != wide {
		t.Errorf("hash = %s, want %s", img.Hash.Hex(), wide.Hex())
	}
	if !img.ModTime.Equal(modTime) {
		t.Errorf("mod time = %v, want %v", img.ModTime, modTime)
	}
}

func TestGetImage_NotFound(t *testing.T) {
	store := openTestStorage(t)

	if _, err := store.GetImage("/missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCommit(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	if snap, err := store.LoadSnapshot(ctx); err != nil || snap != nil {
		t.Fatalf("LoadSnapshot on empty db = %v, %v, want nil, nil", snap, err)
	}

	err := store.Commit(ctx, Changeset{
		Upserts: []*models.ImageInfo{
			{Path: "/a.jpg", Hash: models.NewHash(1), Format: "jpeg", ModTime: time.Now()},
			{Path: "/b.jpg", Hash: models.NewHash(2), Format: "jpeg", ModTime: time.Now()},
		},
		Settings: map[string]string{"hash_type": "dhash", "hash_size": "8"},
		Snapshot: &Snapshot{Data: []byte{1, 2, 3}, Points: 2},
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	err = store.Commit(ctx, Changeset{
		Deletes:  []string{"/a.jpg"},
		Settings: map[string]string{"hash_size": "16"},
		Snapshot: &Snapshot{Data: []byte{4, 5}, Points: 1},
	})
	if err != nil {
		t.Fatalf("second Commit failed: %v", err)
	}

	count, err := store.CountImages()
	if err != nil || count != 1 {
		t.Errorf("CountImages = %d, %v, want 1", count, err)
	}

	settings, err := store.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings["hash_type"] != "dhash" || settings["hash_size"] != "16" {
		t.Errorf("settings = %v", settings)
	}

	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snap == nil || snap.Points != 1 || string(snap.Data) != string([]byte{4, 5}) {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("snapshot UpdatedAt should be set")
	}
}

func TestCommit_Replace(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	first := []*models.ImageInfo{
		{Path: "/a.jpg", Hash: models.NewHash(1), Format: "jpeg", ModTime: time.Now()},
		{Path: "/b.jpg", Hash: models.NewHash(2), Format: "jpeg", ModTime: time.Now()},
	}
	if err := store.Commit(context.Background(), Changeset{Upserts: first}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	err := store.Commit(ctx, Changeset{
		Replace: true,
		Upserts: []*models.ImageInfo{{Path: "/b.jpg", Hash: models.NewHash(7), Format: "jpeg", ModTime: time.Now()}},
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	images, err := store.GetAllImages()
	if err != nil {
		t.Fatalf("GetAllImages failed: %v", err)
	}
	if len(images) != 1 || images[0].Path != "/b.jpg" || images[0].Hash != models.NewHash(7) {
		t.Errorf("unexpected catalog after replace: %d images", len(images))
	}
}

func TestCommit_RollsBackOnCancel(t *testing.T) {
	store := openTestStorage(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.Commit(ctx, Changeset{
		Upserts: []*models.ImageInfo{{Path: "/a.jpg", Hash: models.NewHash(1), Format: "jpeg", ModTime: time.Now()}},
	})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}

	count, err := store.CountImages()
	if err != nil || count != 0 {
		t.Errorf("CountImages = %d, %v, want 0", count, err)
	}
}
