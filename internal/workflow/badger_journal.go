// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	runKeyPrefix = "run:"
	// FinishedRetention is how long completed or failed runs stay queryable.
	FinishedRetention = 24 * time.Hour
)

// BadgerJournal stores one JSON record per run under "run:<id>". Finished
// runs are written with a TTL and expire on their own.
type BadgerJournal struct {
	db *badger.DB
}

// OpenBadgerJournal opens (or creates) the journal at path. An empty path
// opens an in-memory badger instance.
func OpenBadgerJournal(path string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerJournal{db: db}, nil
}

func (j *BadgerJournal) Close() error { return j.db.Close() }

func (j *BadgerJournal) Load(_ context.Context, runID string) (*Record, error) {
	var out Record
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runKeyPrefix + runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (j *BadgerJournal) Save(_ context.Context, rec *Record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	entry := badger.NewEntry([]byte(runKeyPrefix+rec.RunID), buf)
	if rec.Status != StatusRunning {
		entry = entry.WithTTL(FinishedRetention)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
}

func (j *BadgerJournal) Unfinished(ctx context.Context) ([]*Record, error) {
	var out []*Record
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if rec.Status == StatusRunning {
				out = append(out, &rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(out)
	return out, nil
}

var _ Journal = (*BadgerJournal)(nil)
