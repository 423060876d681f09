// internal/database/boltstore.go - BoltDB implementation of the status store
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"solarwatch/internal/status"
)

var (
	StatusBucket  = []byte("site_status")
	HistoryBucket = []byte("site_status_history")
)

type BoltStore struct {
	db   *bbolt.DB
	path string
}

func NewBoltStore(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	store := &BoltStore{db: db, path: path}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{StatusBucket, HistoryBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) GetLast(ctx context.Context, site string) (*SiteState, error) {
	var state *SiteState

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(StatusBucket).Get([]byte(site))
		if v == nil {
			return nil
		}
		var st SiteState
		if err := json.Unmarshal(v, &st); err != nil {
			return fmt.Errorf("failed to unmarshal state for %s: %w", site, err)
		}
		state = &st
		return nil
	})

	return state, err
}

func (s *BoltStore) Upsert(ctx context.Context, site string, st status.Status, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putState(tx, SiteState{Site: site, Status: st, UpdatedAt: at})
	})
}

func (s *BoltStore) Transition(ctx context.Context, site string, st status.Status, at time.Time) (*SiteState, error) {
	var prev *SiteState

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(StatusBucket).Get([]byte(site)); v != nil {
			var p SiteState
			if err := json.Unmarshal(v, &p); err == nil {
				prev = &p
			}
		}
		return putState(tx, SiteState{Site: site, Status: st, UpdatedAt: at})
	})

	if err != nil {
		return nil, err
	}
	return prev, nil
}

func putState(tx *bbolt.Tx, state SiteState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := tx.Bucket(StatusBucket).Put([]byte(state.Site), data); err != nil {
		return err
	}

	histKey := fmt.Sprintf("%s:%d", state.Site, state.UpdatedAt.UnixNano())
	return tx.Bucket(HistoryBucket).Put([]byte(histKey), data)
}

func (s *BoltStore) List(ctx context.Context) ([]SiteState, error) {
	var states []SiteState

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(StatusBucket).ForEach(func(k, v []byte) error {
			var st SiteState
			if err := json.Unmarshal(v, &st); err != nil {
				return nil // skip malformed entries
			}
			states = append(states, st)
			return nil
		})
	})

	return states, err
}

func (s *BoltStore) History(ctx context.Context, site string, since time.Time) ([]SiteState, error) {
	var states []SiteState

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(HistoryBucket).Cursor()
		prefix := site + ":"

		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			var st SiteState
			if err := json.Unmarshal(v, &st); err != nil {
				continue
			}
			if st.UpdatedAt.After(since) {
				states = append(states, st)
			}
		}
		return nil
	})

	return states, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
