package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"imdex/internal/models"
)

// ErrNotFound is returned when a path is not in the catalog
var ErrNotFound = errors.New("image not found")

// Storage persists the image catalog, index settings and the encoded index
type Storage struct {
	db     *sql.DB
	dbPath string
}

// Snapshot is the stored, already encoded index
type Snapshot struct {
	Data      []byte
	Points    int
	UpdatedAt time.Time
}

// Changeset is applied by Commit in a single transaction
type Changeset struct {
	// Replace drops every catalog row before Upserts are written
	Replace  bool
	Upserts  []*models.ImageInfo
	Deletes  []string
	Settings map[string]string
	// Snapshot replaces the stored index when non-nil
	Snapshot *Snapshot
}

// NewStorage creates a new Storage
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Exists reports whether a database file is present at path
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Current schema version
const schemaVersion = 3

// migrations defines all schema migrations
// Each migration should be idempotent (safe to run multiple times)
var migrations = []struct {
	version     int
	description string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add file_hash column for exact matching",
		up: `
			ALTER TABLE images ADD COLUMN file_hash TEXT DEFAULT '';
			CREATE INDEX IF NOT EXISTS idx_images_file_hash ON images(file_hash);
		`,
	},
	{
		version:     3,
		description: "Add settings and index snapshot tables",
		up: `
			CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS index_snapshot (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				data BLOB NOT NULL,
				points INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);
		`,
	},
}

// init creates the database schema
func (s *Storage) init() error {
	// Create schema_version table first
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Create base schema
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		hash BLOB NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		format TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		has_exif INTEGER DEFAULT 0,
		score REAL NOT NULL,
		group_id INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_images_group_id ON images(group_id);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder TEXT NOT NULL,
		scanned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_images INTEGER NOT NULL,
		total_groups INTEGER NOT NULL,
		total_duplicates INTEGER NOT NULL
	);
	`

	_, err = s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion || m.up == "" {
			continue
		}

		// Check if migration is needed (column might already exist)
		if m.version == 2 && s.columnExists("images", "file_hash") {
			s.setSchemaVersion(m.version)
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

// setSchemaVersion records a migration as applied
func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

// columnExists checks if a column exists in a table
func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.dbPath
}

const upsertImage = `
	INSERT INTO images (path, hash, file_hash, width, height, format, file_size, mod_time, has_exif, score, group_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		hash = excluded.hash,
		file_hash = excluded.file_hash,
		width = excluded.width,
		height = excluded.height,
		format = excluded.format,
		file_size = excluded.file_size,
		mod_time = excluded.mod_time,
		has_exif = excluded.has_exif,
		score = excluded.score,
		group_id = excluded.group_id
`

const selectImage = `
	SELECT id, path, hash, file_hash, width, height, format, file_size, mod_time, has_exif, score, group_id
	FROM images
`

// Commit applies a changeset atomically
func (s *Storage) Commit(ctx context.Context, cs Changeset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if cs.Replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM images"); err != nil {
			return fmt.Errorf("failed to clear images: %w", err)
		}
	}

	if len(cs.Deletes) > 0 {
		stmt, err := tx.PrepareContext(ctx, "DELETE FROM images WHERE path = ?")
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, path := range cs.Deletes {
			if _, err := stmt.ExecContext(ctx, path); err != nil {
				return fmt.Errorf("failed to delete image %s: %w", path, err)
			}
		}
	}

	if len(cs.Upserts) > 0 {
		stmt, err := tx.PrepareContext(ctx, upsertImage)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, img := range cs.Upserts {
			hasExifInt := 0
			if img.HasExif {
				hasExifInt = 1
			}
			_, err := stmt.ExecContext(ctx,
				img.Path,
				[]byte(img.Hash),
				img.FileHash,
				img.Width,
				img.Height,
				img.Format,
				img.FileSize,
				img.ModTime.UnixNano(),
				hasExifInt,
				img.Score,
				img.GroupID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert image %s: %w", img.Path, err)
			}
		}
	}

	for key, value := range cs.Settings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	if cs.Snapshot != nil {
		updated := cs.Snapshot.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO index_snapshot (id, data, points, updated_at)
			VALUES (1, ?, ?, ?)
		`, cs.Snapshot.Data, cs.Snapshot.Points, updated.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to save index snapshot: %w", err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*models.ImageInfo, error) {
	img := &models.ImageInfo{}
	var (
		hash       []byte
		modTime    int64
		hasExifInt int
		fileHash   sql.NullString
	)
	err := row.Scan(
		&img.ID,
		&img.Path,
		&hash,
		&fileHash,
		&img.Width,
		&img.Height,
		&img.Format,
		&img.FileSize,
		&modTime,
		&hasExifInt,
		&img.Score,
		&img.GroupID,
	)
	if err != nil {
		return nil, err
	}
	img.Hash = models.Hash(hash)
	img.FileHash = fileHash.String
	img.HasExif = hasExifInt == 1
	img.ModTime = time.Unix(0, modTime)
	return img, nil
}

func (s *Storage) queryImages(query string, args ...any) ([]*models.ImageInfo, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []*models.ImageInfo
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read images: %w", err)
	}

	return images, nil
}

// GetAllImages returns all stored images
func (s *Storage) GetAllImages() ([]*models.ImageInfo, error) {
	return s.queryImages(selectImage + " ORDER BY path")
}

// GetImage returns the catalog entry for path or ErrNotFound
func (s *Storage) GetImage(path string) (*models.ImageInfo, error) {
	img, err := scanImage(s.db.QueryRow(selectImage+" WHERE path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return img, nil
}

// CountImages returns the number of catalog entries
func (s *Storage) CountImages() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM images").Scan(&count)
	return count, err
}

// UpdateGroups updates group IDs for images
func (s *Storage) UpdateGroups(groups []*models.DuplicateGroup) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Reset all group IDs
	_, err = tx.Exec("UPDATE images SET group_id = 0")
	if err != nil {
		return fmt.Errorf("failed to reset groups: %w", err)
	}

	stmt, err := tx.Prepare("UPDATE images SET group_id = ? WHERE path = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, group := range groups {
		for _, img := range group.Images {
			_, err := stmt.Exec(group.ID, img.Path)
			if err != nil {
				return fmt.Errorf("failed to update group for %s: %w", img.Path, err)
			}
		}
	}

	return tx.Commit()
}

// GetImagesByGroupID returns images in a specific group
func (s *Storage) GetImagesByGroupID(groupID int) ([]*models.ImageInfo, error) {
	return s.queryImages(selectImage+" WHERE group_id = ? ORDER BY score DESC, path", groupID)
}

// RecordScan records a scan in history
func (s *Storage) RecordScan(folder string, totalImages, totalGroups, totalDuplicates int) error {
	_, err := s.db.Exec(`
		INSERT INTO scan_history (folder, total_images, total_groups, total_duplicates)
		VALUES (?, ?, ?, ?)
	`, folder, totalImages, totalGroups, totalDuplicates)
	return err
}

// GetGroupCount returns the number of duplicate groups
func (s *Storage) GetGroupCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(DISTINCT group_id) FROM images WHERE group_id > 0").Scan(&count)
	return count, err
}

// GetDuplicateGroups returns all duplicate groups with their images
func (s *Storage) GetDuplicateGroups() ([]*models.DuplicateGroup, error) {
	// Get distinct group IDs
	rows, err := s.db.Query("SELECT DISTINCT group_id FROM images WHERE group_id > 0 ORDER BY group_id")
	if err != nil {
		return nil, err
	}

	var groupIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		groupIDs = append(groupIDs, id)
	}
	// release the only connection before the per-group queries
	rows.Close()

	// Build groups
	var groups []*models.DuplicateGroup
	for _, id := range groupIDs {
		images, err := s.GetImagesByGroupID(id)
		if err != nil {
			return nil, err
		}

		if len(images) < 2 {
			continue
		}

		group := &models.DuplicateGroup{
			ID:     id,
			Images: images,
			Keep:   images[0], // Already sorted by score DESC
			Remove: images[1:],
		}
		groups = append(groups, group)
	}

	return groups, nil
}

// GetSettings returns all stored settings
func (s *Storage) GetSettings() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// LoadSnapshot returns the stored index, or nil if none was saved
func (s *Storage) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		snap    Snapshot
		updated int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT data, points, updated_at FROM index_snapshot WHERE id = 1").
		Scan(&snap.Data, &snap.Points, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index snapshot: %w", err)
	}
	snap.UpdatedAt = time.Unix(0, updated)
	return &snap, nil
}
