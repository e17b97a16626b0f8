// Package bolt is a store.Store backed by bbolt.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/Comcast/voodoo/store"

	bolt "go.etcd.io/bbolt"
)

var runsBucket = []byte("runs")

// NotOpen occurs when a Store is used before it's opened.
var NotOpen = errors.New("store not open")

// Store keeps each Run as JSON in a single bucket keyed by the
// run's id.
type Store struct {
	Debug    bool
	filename string
	db       *bolt.DB
}

func NewStore(filename string) (*Store, error) {
	return &Store{
		filename: filename,
	}, nil
}

func (s *Store) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db

	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
}

func (s *Store) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) logf(format string, args ...interface{}) {
	if s.Debug {
		log.Printf("BoltDB Store."+format, args...)
	}
}

func (s *Store) WriteRun(ctx context.Context, r *store.Run) error {
	if s.db == nil {
		return NotOpen
	}
	if r.Id == "" {
		return errors.New("run has no id")
	}
	s.logf("WriteRun %s", r.Id)

	js, err := json.Marshal(r)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).Put([]byte(r.Id), js)
	})
}

func (s *Store) GetRun(ctx context.Context, id string) (*store.Run, error) {
	if s.db == nil {
		return nil, NotOpen
	}
	s.logf("GetRun %s", id)

	var r *store.Run
	err := s.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(runsBucket).Get([]byte(id))
		if bs == nil {
			return nil
		}
		r = &store.Run{}
		return json.Unmarshal(bs, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, NotOpen
	}

	ids := make([]string, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for id, _ := c.First(); id != nil; id, _ = c.Next() {
			ids = append(ids, string(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logf("ListRuns found %d runs", len(ids))

	return ids, nil
}

func (s *Store) RemRun(ctx context.Context, id string) error {
	if s.db == nil {
		return NotOpen
	}
	s.logf("RemRun %s", id)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).Delete([]byte(id))
	})
}
