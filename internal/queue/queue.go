// Package queue persists pending mutations so a crash or app kill never
// loses work enqueued while offline.
package queue

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"hitch/internal/models"
)

var bucketActions = []byte("actions")

const DefaultMaxRetries = 3

// Queue is a durable, priority-ordered action queue backed by bbolt.
// bbolt serializes writers and fsyncs before Update returns, which gives
// the enqueue-is-durable and no-interleaved-writes guarantees directly.
type Queue struct {
	db *bbolt.DB
}

func Open(path string) (*Queue, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketActions)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create actions bucket: %w", err)
	}

	return &Queue{db: db}, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue assigns the item an id, sequence number and enqueue timestamp,
// persists it, and returns the stored form. The item is on disk before
// Enqueue returns.
func (q *Queue) Enqueue(item models.SyncItem) (models.SyncItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EnqueuedAt == 0 {
		item.EnqueuedAt = time.Now().UnixMilli()
	}
	if item.Priority == "" {
		item.Priority = models.PriorityMedium
	}
	if item.MaxRetries <= 0 {
		item.MaxRetries = DefaultMaxRetries
	}

	err := q.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketActions)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		item.Seq = seq

		dbAction := toDB(item)
		data, err := dbAction.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbAction.Key(), data)
	})
	if err != nil {
		return models.SyncItem{}, fmt.Errorf("failed to enqueue action: %w", err)
	}
	return item, nil
}

// List returns all pending items sorted by priority class, then enqueue
// order within a class. Sequence numbers are unique so the order is total.
func (q *Queue) List() ([]models.SyncItem, error) {
	var items []models.SyncItem
	err := q.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketActions)
		return b.ForEach(func(k, v []byte) error {
			var dbAction DBAction
			if err := dbAction.UnmarshalBinary(v); err != nil {
				return err
			}
			items = append(items, dbAction.toModel())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		ri, rj := items[i].Priority.Rank(), items[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return items[i].Seq < items[j].Seq
	})

	return items, nil
}

// Update overwrites a stored item in place, keyed by its sequence number.
func (q *Queue) Update(item models.SyncItem) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketActions)
		dbAction := toDB(item)
		if b.Get(dbAction.Key()) == nil {
			return models.ErrNotFound
		}
		data, err := dbAction.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbAction.Key(), data)
	})
}

// Remove deletes the item with the given id. Removing an unknown id is
// not an error: the item may already be gone after a successful replay.
func (q *Queue) Remove(id string) error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketActions)
		var key []byte
		err := b.ForEach(func(k, v []byte) error {
			var dbAction DBAction
			if err := dbAction.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbAction.ID == id {
				key = append([]byte(nil), k...)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if key == nil {
			return nil
		}
		return b.Delete(key)
	})
}

// Clear drops every pending item.
func (q *Queue) Clear() error {
	return q.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketActions); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketActions)
		return err
	})
}

// Len returns the number of pending items.
func (q *Queue) Len() (int, error) {
	var n int
	err := q.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketActions).Stats().KeyN
		return nil
	})
	return n, err
}
