// Package repository persists queue snapshots in bbolt so a restart can
// show the last known task set before the engine is reachable again.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/fetchq/fetchq/internal/task"
)

const (
	tasksBucket    = "tasks"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

// ErrTaskNotFound is returned when a task cannot be found.
var ErrTaskNotFound = errors.New("task not found")

// BboltRepository stores task records as JSON keyed by id.
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository opens (or creates) the snapshot database.
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema.
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tasksBucket))
		if err != nil {
			return fmt.Errorf("failed to create tasks bucket: %w", err)
		}

		metadataBucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		versionBytes := []byte(fmt.Sprintf("%d", schemaVersion))
		err = metadataBucket.Put([]byte("schema_version"), versionBytes)
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save persists one task record.
func (r *BboltRepository) Save(t task.Task) error {
	if t.ID == uuid.Nil {
		return errors.New("task ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		err = bucket.Put([]byte(t.ID.String()), data)
		if err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}

		return nil
	})
}

// SaveAll replaces the stored snapshot with the given task set in a single
// transaction, so readers never observe a half-written snapshot.
func (r *BboltRepository) SaveAll(tasks []task.Task) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(tasksBucket)); err != nil {
			return fmt.Errorf("failed to reset tasks bucket: %w", err)
		}

		bucket, err := tx.CreateBucket([]byte(tasksBucket))
		if err != nil {
			return fmt.Errorf("failed to create tasks bucket: %w", err)
		}

		for _, t := range tasks {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("failed to marshal task: %w", err)
			}

			if err := bucket.Put([]byte(t.ID.String()), data); err != nil {
				return fmt.Errorf("failed to save task: %w", err)
			}
		}

		return nil
	})
}

// FindAll retrieves every stored task.
func (r *BboltRepository) FindAll() ([]task.Task, error) {
	var tasks []task.Task

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			var t task.Task

			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("failed to unmarshal task: %w", err)
			}

			tasks = append(tasks, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return tasks, nil
}

// Delete removes a stored task.
func (r *BboltRepository) Delete(id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New("task ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(tasksBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", tasksBucket)
		}

		if bucket.Get([]byte(id.String())) == nil {
			return ErrTaskNotFound
		}

		return bucket.Delete([]byte(id.String()))
	})
}

// Close closes the database.
func (r *BboltRepository) Close() error {
	return r.db.Close()
}
