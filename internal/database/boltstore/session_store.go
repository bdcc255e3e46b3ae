package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cacviun/internal/models"

	bolt "go.etcd.io/bbolt"
)

// sessionRecord is the serialized snapshot written on every session change.
type sessionRecord struct {
	Session   models.Session `json:"session"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SessionStore persists one session slot per browser, keyed by session id.
type SessionStore struct {
	db  *bolt.DB
	now func() time.Time
}

// Load returns the stored session for sid. ok is false when no slot exists.
func (s *SessionStore) Load(ctx context.Context, sid string) (models.Session, bool, error) {
	var rec sessionRecord
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}

		data := bucket.Get([]byte(sid))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return models.Session{}, false, err
	}

	return rec.Session, found, nil
}

// Save writes the whole session for sid (upsert).
func (s *SessionStore) Save(ctx context.Context, sid string, sess models.Session) error {
	data, err := json.Marshal(sessionRecord{Session: sess, UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}
		return bucket.Put([]byte(sid), data)
	})
}

// Delete removes the slot for sid. Deleting a missing slot is not an error.
func (s *SessionStore) Delete(ctx context.Context, sid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}
		return bucket.Delete([]byte(sid))
	})
}

// Count returns the number of stored slots.
func (s *SessionStore) Count(ctx context.Context) (int, error) {
	var count int

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return nil
		}
		count = bucket.Stats().KeyN
		return nil
	})

	return count, err
}

// ListByEmail returns the session ids currently signed in as email.
func (s *SessionStore) ListByEmail(ctx context.Context, email string) ([]string, error) {
	var sids []string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var rec sessionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				// Skip malformed entries
				return nil
			}
			if rec.Session.Email == email {
				sids = append(sids, string(k))
			}
			return nil
		})
	})

	return sids, err
}

// Prune deletes signed-out slots and slots untouched for longer than maxAge.
// It returns the ids of the removed slots.
func (s *SessionStore) Prune(ctx context.Context, maxAge time.Duration) ([]string, error) {
	cutoff := s.now().UTC().Add(-maxAge)
	var removed []string

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketSessions)
		if bucket == nil {
			return nil
		}

		// Collect keys to delete (can't delete while iterating)
		var keysToDelete [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var rec sessionRecord
			if err := json.Unmarshal(v, &rec); err != nil || rec.Session.IsZero() || rec.UpdatedAt.Before(cutoff) {
				keysToDelete = append(keysToDelete, append([]byte{}, k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keysToDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		for _, k := range keysToDelete {
			removed = append(removed, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
