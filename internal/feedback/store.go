// Copyright 2025 SPL Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package feedback stores user verdicts on generated SPL queries. It
// supports append-only JSON-lines files and SQLite.
package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	StorageTypeFile   = "file"
	StorageTypeSQLite = "sqlite"
)

// Record is one feedback entry for a generated query.
type Record struct {
	ID              string    `json:"id"`
	Query           string    `json:"query"`
	SPLQuery        string    `json:"spl_query"`
	Rating          string    `json:"rating"`
	Comment         string    `json:"comment,omitempty"`
	DetectionMethod string    `json:"detection_method,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Config holds feedback storage configuration
type Config struct {
	StorageType string `json:"storage_type"` // StorageTypeFile or StorageTypeSQLite
	FilePath    string `json:"file_path"`    // Path for file storage
	DBPath      string `json:"db_path"`      // Path for SQLite database
}

// Store persists feedback records to the configured backend.
type Store struct {
	config Config
	logger *zap.Logger
	db     *sql.DB
	mu     sync.RWMutex
}

// NewStore creates a feedback store for the configured backend.
func NewStore(config Config, logger *zap.Logger) (*Store, error) {
	s := &Store{
		config: config,
		logger: logger,
	}

	switch config.StorageType {
	case StorageTypeFile:
		if err := s.initFileStorage(); err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}
	case StorageTypeSQLite:
		if err := s.initSQLiteStorage(); err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.StorageType)
	}

	return s, nil
}

func (s *Store) initFileStorage() error {
	dir := filepath.Dir(s.config.FilePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create feedback directory: %w", err)
	}

	if _, err := os.Stat(s.config.FilePath); os.IsNotExist(err) {
		file, err := os.Create(s.config.FilePath)
		if err != nil {
			return fmt.Errorf("failed to create feedback file: %w", err)
		}
		_ = file.Close()
	}

	return nil
}

func (s *Store) initSQLiteStorage() error {
	dir := filepath.Dir(s.config.DBPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create feedback database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", s.config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS spl_feedback (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			spl_query TEXT NOT NULL,
			rating TEXT NOT NULL,
			comment TEXT,
			detection_method TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create feedback table: %w", err)
	}

	s.db = db
	return nil
}

// Save assigns an ID and timestamp to the record and persists it.
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = generateRecordID()
	rec.Timestamp = time.Now()

	switch s.config.StorageType {
	case StorageTypeFile:
		return s.saveToFile(rec)
	case StorageTypeSQLite:
		return s.saveToSQLite(rec)
	default:
		return fmt.Errorf("unsupported storage type: %s", s.config.StorageType)
	}
}

func (s *Store) saveToFile(rec Record) error {
	file, err := os.OpenFile(s.config.FilePath, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open feedback file: %w", err)
	}
	defer func() { _ = file.Close() }()

	jsonData, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}

	if _, err := file.WriteString(string(jsonData) + "\n"); err != nil {
		return fmt.Errorf("failed to write feedback to file: %w", err)
	}

	s.logger.Info("Feedback logged to file",
		zap.String("id", rec.ID),
		zap.String("rating", rec.Rating))

	return nil
}

func (s *Store) saveToSQLite(rec Record) error {
	if s.db == nil {
		return fmt.Errorf("SQLite database not initialized")
	}

	insertSQL := `
		INSERT INTO spl_feedback (id, query, spl_query, rating, comment, detection_method, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(insertSQL,
		rec.ID,
		rec.Query,
		rec.SPLQuery,
		rec.Rating,
		rec.Comment,
		rec.DetectionMethod,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback into SQLite: %w", err)
	}

	s.logger.Info("Feedback logged to SQLite",
		zap.String("id", rec.ID),
		zap.String("rating", rec.Rating))

	return nil
}

// Recent retrieves the newest feedback entries. SQLite only.
func (s *Store) Recent(limit int) ([]Record, error) {
	if s.config.StorageType != StorageTypeSQLite {
		return nil, fmt.Errorf("Recent only supported for SQLite storage")
	}
	if s.db == nil {
		return nil, fmt.Errorf("SQLite database not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, query, spl_query, rating, comment, detection_method, timestamp
		FROM spl_feedback
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var rec Record
		var comment, method sql.NullString

		err := rows.Scan(&rec.ID, &rec.Query, &rec.SPLQuery, &rec.Rating, &comment, &method, &rec.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}

		if comment.Valid {
			rec.Comment = comment.String
		}
		if method.Valid {
			rec.DetectionMethod = method.String
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback rows: %w", err)
	}

	return records, nil
}

// RatingStats returns per-rating counts. SQLite only.
func (s *Store) RatingStats() (map[string]int, error) {
	if s.config.StorageType != StorageTypeSQLite {
		return nil, fmt.Errorf("RatingStats only supported for SQLite storage")
	}
	if s.db == nil {
		return nil, fmt.Errorf("SQLite database not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT rating, COUNT(*) as count
		FROM spl_feedback
		GROUP BY rating
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[string]int)
	for rows.Next() {
		var rating string
		var count int

		if err := rows.Scan(&rating, &count); err != nil {
			return nil, fmt.Errorf("failed to scan feedback stats row: %w", err)
		}

		stats[rating] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback stats rows: %w", err)
	}

	return stats, nil
}

// Ping verifies the backend is usable, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.config.StorageType {
	case StorageTypeFile:
		if _, err := os.Stat(s.config.FilePath); err != nil {
			return fmt.Errorf("feedback file not accessible: %w", err)
		}
		return nil
	case StorageTypeSQLite:
		if s.db == nil {
			return fmt.Errorf("SQLite database not initialized")
		}
		return s.db.PingContext(ctx)
	default:
		return fmt.Errorf("unsupported storage type: %s", s.config.StorageType)
	}
}

// Close releases any open resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

func generateRecordID() string {
	return fmt.Sprintf("feedback_%d", time.Now().UnixNano())
}
