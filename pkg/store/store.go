// Package store persists solve runs in a sqlite database.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/solvo-project/solvo/pkg/compile"
)

// Run is one recorded solve. Solution carries the full result as a
// JSON blob so new result fields survive without a migration.
type Run struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	CreatedAt      time.Time `json:"createdAt" gorm:"index"`
	Name           string    `json:"name"`
	Kind           string    `json:"kind"`
	Fingerprint    string    `json:"fingerprint" gorm:"index"`
	Status         string    `json:"status"`
	Objective      *float64  `json:"objective,omitempty"`
	DurationMillis int64     `json:"durationMillis"`
	Solution       string    `json:"solution,omitempty"`
}

// Store records and lists runs.
type Store struct {
	db *gorm.DB
}

// Open opens the sqlite database at path, creating the file and the
// runs table when they do not exist. The gorm logger is silenced so
// the process log stays the only log surface.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open run store %s", path)
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, errors.Wrap(err, "unable to migrate run store")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// Record saves one solve result and returns the stored run.
func (s *Store) Record(result *compile.Result) (*Run, error) {
	solution, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode solution")
	}
	run := &Run{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Name:           result.Name,
		Kind:           result.Kind,
		Fingerprint:    result.Fingerprint,
		Status:         string(result.Status),
		Objective:      result.Objective,
		DurationMillis: result.Duration.Milliseconds(),
		Solution:       string(solution),
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, errors.Wrap(err, "unable to record run")
	}
	return run, nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(limit int) ([]Run, error) {
	var runs []Run
	err := s.db.Order("created_at desc").Limit(limit).Find(&runs).Error
	return runs, errors.Wrap(err, "unable to list runs")
}
