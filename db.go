package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	createCategoriesTableSQL = `
	CREATE TABLE IF NOT EXISTS seal_categories (
		"id" TEXT NOT NULL PRIMARY KEY,
		"name" TEXT NOT NULL,
		"full_name" TEXT NOT NULL,
		"description" TEXT,
		"icon" TEXT,
		"color" TEXT,
		"bonus_unopened" TEXT,
		"bonus_normal" TEXT,
		"bonus_bronze" TEXT,
		"bonus_silver" TEXT,
		"bonus_gold" TEXT,
		"bonus_platinum" TEXT,
		"bonus_master" TEXT,
		"updated_at" TEXT NOT NULL
	);`

	createSealsTableSQL = `
	CREATE TABLE IF NOT EXISTS seals (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"category_id" TEXT NOT NULL REFERENCES seal_categories(id),
		"name" TEXT NOT NULL,
		"image_url" TEXT,
		"max_seals" INTEGER NOT NULL DEFAULT 3000,
		"bonus_unopened" TEXT,
		"bonus_normal" TEXT,
		"bonus_bronze" TEXT,
		"bonus_silver" TEXT,
		"bonus_gold" TEXT,
		"bonus_platinum" TEXT,
		"bonus_master" TEXT,
		"updated_at" TEXT NOT NULL,
		UNIQUE(category_id, name)
	);`

	createLocationsTableSQL = `
	CREATE TABLE IF NOT EXISTS seal_locations (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"seal_id" INTEGER NOT NULL REFERENCES seals(id) ON DELETE CASCADE,
		"location" TEXT NOT NULL,
		UNIQUE(seal_id, location)
	);`

	createMetadataTableSQL = `
	CREATE TABLE IF NOT EXISTS metadata (
		"key" TEXT NOT NULL PRIMARY KEY,
		"value" TEXT,
		"updated_at" TEXT NOT NULL
	);`

	createScrapeLogsTableSQL = `
	CREATE TABLE IF NOT EXISTS scrape_logs (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"started_at" TEXT NOT NULL,
		"finished_at" TEXT,
		"status" TEXT NOT NULL DEFAULT 'running',
		"seals_count" INTEGER,
		"error_message" TEXT
	);`
)

// Store wraps the sqlite handle. It is constructed once in main and passed
// to every component that touches the database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the sqlite database and ensures the schema
// exists. Foreign keys are enabled in the DSN so location rows follow
// their seal on delete.
func OpenStore(filepath string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+filepath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	queries := []struct {
		name string
		sql  string
	}{
		{"seal_categories", createCategoriesTableSQL},
		{"seals", createSealsTableSQL},
		{"seal_locations", createLocationsTableSQL},
		{"metadata", createMetadataTableSQL},
		{"scrape_logs", createScrapeLogsTableSQL},
		{"idx_seals_category", `CREATE INDEX IF NOT EXISTS idx_seals_category ON seals (category_id);`},
		{"idx_locations_seal", `CREATE INDEX IF NOT EXISTS idx_locations_seal ON seal_locations (seal_id);`},
	}
	for _, q := range queries {
		if _, err := db.Exec(q.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create '%s': %w", q.name, err)
		}
	}

	return &Store{db: db}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceAll swaps the entire category/seal/location dataset in one
// transaction: clear, insert categories, insert seals with their
// locations, stamp the last-scrape metadata. A failure anywhere rolls the
// whole replace back, so readers never observe a half-replaced store.
func (s *Store) ReplaceAll(categories []SealCategory) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin replace transaction: %w", err)
	}
	defer tx.Rollback()

	// sqlite has no TRUNCATE; ordered deletes are its bulk clear, child
	// tables first to satisfy the foreign keys.
	for _, table := range []string{"seal_locations", "seals", "seal_categories"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return 0, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	now := time.Now().Format(time.RFC3339)

	catStmt, err := tx.Prepare(`
		INSERT INTO seal_categories
			(id, name, full_name, description, icon, color,
			 bonus_unopened, bonus_normal, bonus_bronze, bonus_silver,
			 bonus_gold, bonus_platinum, bonus_master, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare category insert: %w", err)
	}
	defer catStmt.Close()

	sealStmt, err := tx.Prepare(`
		INSERT INTO seals
			(category_id, name, image_url, max_seals,
			 bonus_unopened, bonus_normal, bonus_bronze, bonus_silver,
			 bonus_gold, bonus_platinum, bonus_master, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare seal insert: %w", err)
	}
	defer sealStmt.Close()

	locStmt, err := tx.Prepare(`
		INSERT INTO seal_locations (seal_id, location)
		VALUES (?, ?)
		ON CONFLICT(seal_id, location) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare location insert: %w", err)
	}
	defer locStmt.Close()

	// Categories go first: seals reference them.
	for _, cat := range categories {
		b := cat.Bonuses
		if _, err := catStmt.Exec(cat.ID, cat.Name, cat.FullName, cat.Description, cat.Icon, cat.Color,
			b.Unopened, b.Normal, b.Bronze, b.Silver, b.Gold, b.Platinum, b.Master, now); err != nil {
			return 0, fmt.Errorf("failed to insert category '%s': %w", cat.ID, err)
		}
	}

	totalSeals := 0
	for _, cat := range categories {
		for _, seal := range cat.Seals {
			bonuses := seal.Bonuses
			if bonuses.IsZero() {
				bonuses = cat.Bonuses
			}
			var imageURL sql.NullString
			if seal.ImageURL != "" {
				imageURL = sql.NullString{String: seal.ImageURL, Valid: true}
			}

			res, err := sealStmt.Exec(cat.ID, seal.Name, imageURL, seal.MaxSeals,
				bonuses.Unopened, bonuses.Normal, bonuses.Bronze, bonuses.Silver,
				bonuses.Gold, bonuses.Platinum, bonuses.Master, now)
			if err != nil {
				return 0, fmt.Errorf("failed to insert seal '%s' in %s: %w", seal.Name, cat.ID, err)
			}
			sealID, err := res.LastInsertId()
			if err != nil {
				return 0, fmt.Errorf("failed to read id of seal '%s': %w", seal.Name, err)
			}

			for _, location := range seal.Locations {
				if _, err := locStmt.Exec(sealID, location); err != nil {
					return 0, fmt.Errorf("failed to insert location '%s' for seal '%s': %w", location, seal.Name, err)
				}
			}
			totalSeals++
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO metadata (key, value, updated_at) VALUES ('last_scrape', ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
	`, now, now); err != nil {
		return 0, fmt.Errorf("failed to stamp last_scrape: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit replace transaction: %w", err)
	}

	log.Printf("[I] [DB] Replaced dataset: %d seals in %d categories.", totalSeals, len(categories))
	return totalSeals, nil
}

// CreateScrapeRun opens a run-log row and returns its id.
func (s *Store) CreateScrapeRun() (int64, error) {
	res, err := s.db.Exec(`INSERT INTO scrape_logs (started_at, status) VALUES (?, ?)`,
		time.Now().Format(time.RFC3339), runStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to create scrape log: %w", err)
	}
	return res.LastInsertId()
}

// FinishScrapeRun closes a run-log row with its final status. errorMessage
// may carry a fallback reason even on success.
func (s *Store) FinishScrapeRun(id int64, status string, sealsCount int, errorMessage string) error {
	var errMsg sql.NullString
	if errorMessage != "" {
		errMsg = sql.NullString{String: errorMessage, Valid: true}
	}
	_, err := s.db.Exec(`
		UPDATE scrape_logs SET finished_at = ?, status = ?, seals_count = ?, error_message = ?
		WHERE id = ?
	`, time.Now().Format(time.RFC3339), status, sealsCount, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to finish scrape log %d: %w", id, err)
	}
	return nil
}

// ScrapeRuns returns the most recent run-log rows, newest first.
func (s *Store) ScrapeRuns(limit int) ([]ScrapeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, COALESCE(finished_at, ''), status,
		       COALESCE(seals_count, 0), COALESCE(error_message, '')
		FROM scrape_logs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrape logs: %w", err)
	}
	defer rows.Close()

	var runs []ScrapeRun
	for rows.Next() {
		var run ScrapeRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Status, &run.SealsCount, &run.ErrorMessage); err != nil {
			log.Printf("[W] [DB] Failed to scan scrape log row: %v", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SealCount counts all stored seals.
func (s *Store) SealCount() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM seals").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count seals: %w", err)
	}
	return count, nil
}

// LastUpdate returns the last_scrape metadata stamp, or "" when no scrape
// has completed yet.
func (s *Store) LastUpdate() (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'last_scrape'").Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last_scrape: %w", err)
	}
	return value, nil
}

// AllSealData loads the full dataset the presentation layer consumes:
// every category with its seals, locations, and effective bonus schedule.
func (s *Store) AllSealData() ([]SealCategory, error) {
	catRows, err := s.db.Query(`
		SELECT id, name, full_name, COALESCE(description, ''), COALESCE(icon, ''), COALESCE(color, ''),
		       COALESCE(bonus_unopened, '+0'), COALESCE(bonus_normal, '+0'), COALESCE(bonus_bronze, '+0'),
		       COALESCE(bonus_silver, '+0'), COALESCE(bonus_gold, '+0'), COALESCE(bonus_platinum, '+0'),
		       COALESCE(bonus_master, '+0')
		FROM seal_categories ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer catRows.Close()

	var categories []SealCategory
	for catRows.Next() {
		var cat SealCategory
		b := &cat.Bonuses
		if err := catRows.Scan(&cat.ID, &cat.Name, &cat.FullName, &cat.Description, &cat.Icon, &cat.Color,
			&b.Unopened, &b.Normal, &b.Bronze, &b.Silver, &b.Gold, &b.Platinum, &b.Master); err != nil {
			log.Printf("[W] [DB] Failed to scan category row: %v", err)
			continue
		}
		categories = append(categories, cat)
	}
	if err := catRows.Err(); err != nil {
		return nil, err
	}

	for i := range categories {
		seals, err := s.SealsByCategory(categories[i].ID)
		if err != nil {
			return nil, err
		}
		categories[i].Seals = seals
	}
	return categories, nil
}

// SealsByCategory loads one category's seals with their locations,
// ordered by name.
func (s *Store) SealsByCategory(categoryID string) ([]Seal, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.name, COALESCE(s.image_url, ''), s.max_seals,
		       COALESCE(s.bonus_unopened, '+0'), COALESCE(s.bonus_normal, '+0'), COALESCE(s.bonus_bronze, '+0'),
		       COALESCE(s.bonus_silver, '+0'), COALESCE(s.bonus_gold, '+0'), COALESCE(s.bonus_platinum, '+0'),
		       COALESCE(s.bonus_master, '+0')
		FROM seals s
		WHERE s.category_id = ?
		ORDER BY s.name
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query seals for %s: %w", categoryID, err)
	}
	defer rows.Close()

	var seals []Seal
	for rows.Next() {
		var seal Seal
		b := &seal.Bonuses
		if err := rows.Scan(&seal.ID, &seal.Name, &seal.ImageURL, &seal.MaxSeals,
			&b.Unopened, &b.Normal, &b.Bronze, &b.Silver, &b.Gold, &b.Platinum, &b.Master); err != nil {
			log.Printf("[W] [DB] Failed to scan seal row: %v", err)
			continue
		}
		seals = append(seals, seal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range seals {
		locRows, err := s.db.Query("SELECT location FROM seal_locations WHERE seal_id = ? ORDER BY location", seals[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to query locations for seal %d: %w", seals[i].ID, err)
		}
		for locRows.Next() {
			var loc string
			if err := locRows.Scan(&loc); err == nil {
				seals[i].Locations = append(seals[i].Locations, loc)
			}
		}
		locRows.Close()
	}
	return seals, nil
}

// FindSealByName looks a seal up by exact name (case-insensitive), for the
// Discord lookup command. Returns the seal, its category id, and whether
// it was found.
func (s *Store) FindSealByName(name string) (Seal, string, bool) {
	var seal Seal
	var categoryID string
	b := &seal.Bonuses
	err := s.db.QueryRow(`
		SELECT s.id, s.category_id, s.name, COALESCE(s.image_url, ''), s.max_seals,
		       COALESCE(s.bonus_unopened, '+0'), COALESCE(s.bonus_normal, '+0'), COALESCE(s.bonus_bronze, '+0'),
		       COALESCE(s.bonus_silver, '+0'), COALESCE(s.bonus_gold, '+0'), COALESCE(s.bonus_platinum, '+0'),
		       COALESCE(s.bonus_master, '+0')
		FROM seals s WHERE LOWER(s.name) = LOWER(?) LIMIT 1
	`, name).Scan(&seal.ID, &categoryID, &seal.Name, &seal.ImageURL, &seal.MaxSeals,
		&b.Unopened, &b.Normal, &b.Bronze, &b.Silver, &b.Gold, &b.Platinum, &b.Master)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[W] [DB] Seal lookup for '%s' failed: %v", name, err)
		}
		return Seal{}, "", false
	}

	locRows, err := s.db.Query("SELECT location FROM seal_locations WHERE seal_id = ? ORDER BY location", seal.ID)
	if err == nil {
		defer locRows.Close()
		for locRows.Next() {
			var loc string
			if err := locRows.Scan(&loc); err == nil {
				seal.Locations = append(seal.Locations, loc)
			}
		}
	}
	return seal, categoryID, true
}

// AllSealsWithLocations returns the flattened admin view of every seal.
func (s *Store) AllSealsWithLocations() ([]AdminSeal, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.name, s.category_id, sc.name, COALESCE(sc.color, ''), s.max_seals
		FROM seals s
		JOIN seal_categories sc ON s.category_id = sc.id
		ORDER BY sc.name, s.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin seal list: %w", err)
	}
	defer rows.Close()

	var seals []AdminSeal
	for rows.Next() {
		var seal AdminSeal
		if err := rows.Scan(&seal.ID, &seal.Name, &seal.CategoryID, &seal.CategoryName, &seal.CategoryColor, &seal.MaxSeals); err != nil {
			log.Printf("[W] [DB] Failed to scan admin seal row: %v", err)
			continue
		}
		seal.Locations = []AdminLocation{}
		seals = append(seals, seal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range seals {
		locRows, err := s.db.Query("SELECT id, location FROM seal_locations WHERE seal_id = ? ORDER BY location", seals[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to query locations for seal %d: %w", seals[i].ID, err)
		}
		for locRows.Next() {
			var loc AdminLocation
			if err := locRows.Scan(&loc.ID, &loc.Location); err == nil {
				seals[i].Locations = append(seals[i].Locations, loc)
			}
		}
		locRows.Close()
	}
	return seals, nil
}

// AddLocation attaches a location to a seal, ignoring exact duplicates.
func (s *Store) AddLocation(sealID int, location string) error {
	_, err := s.db.Exec(`
		INSERT INTO seal_locations (seal_id, location) VALUES (?, ?)
		ON CONFLICT(seal_id, location) DO NOTHING
	`, sealID, location)
	if err != nil {
		return fmt.Errorf("failed to add location to seal %d: %w", sealID, err)
	}
	return nil
}

// UpdateLocation rewrites one location row's text.
func (s *Store) UpdateLocation(locationID int, location string) error {
	res, err := s.db.Exec("UPDATE seal_locations SET location = ? WHERE id = ?", location, locationID)
	if err != nil {
		return fmt.Errorf("failed to update location %d: %w", locationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("location %d not found", locationID)
	}
	return nil
}

// DeleteLocation removes one location row.
func (s *Store) DeleteLocation(locationID int) error {
	res, err := s.db.Exec("DELETE FROM seal_locations WHERE id = ?", locationID)
	if err != nil {
		return fmt.Errorf("failed to delete location %d: %w", locationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("location %d not found", locationID)
	}
	return nil
}

// UpdateSealMax corrects a seal's maximum quantity from the admin panel.
func (s *Store) UpdateSealMax(sealID, maxSeals int) error {
	res, err := s.db.Exec("UPDATE seals SET max_seals = ?, updated_at = ? WHERE id = ?",
		maxSeals, time.Now().Format(time.RFC3339), sealID)
	if err != nil {
		return fmt.Errorf("failed to update max_seals for seal %d: %w", sealID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("seal %d not found", sealID)
	}
	return nil
}
