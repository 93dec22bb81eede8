package ledger

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"oms/internal/model"
)

// BadgerStore implements Store on BadgerDB, keyed by order id.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(dir))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Close() error { return b.db.Close() }

func (b *BadgerStore) Insert(rec model.OrderRecord) (bool, error) {
	if rec.ID == "" {
		return false, fmt.Errorf("insert: empty order id")
	}
	var inserted bool
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(rec.ID))
		if err == nil {
			// First write wins.
			inserted = false
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		bytes, e := json.Marshal(rec)
		if e != nil {
			return e
		}
		if e := txn.Set([]byte(rec.ID), bytes); e != nil {
			return e
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (b *BadgerStore) UpdateStatus(id string, status string) (bool, error) {
	var updated bool
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err == badger.ErrKeyNotFound {
			updated = false
			return nil
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var rec model.OrderRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		rec.Status = status
		bytes, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(id), bytes); err != nil {
			return err
		}
		updated = true
		return nil
	})
	return updated, err
}

func (b *BadgerStore) Get(id string) (model.OrderRecord, bool) {
	var rec model.OrderRecord
	err := b.db.View(func(txn *badger.Txn) error {
		item, e := txn.Get([]byte(id))
		if e != nil {
			return e
		}
		v, e := item.ValueCopy(nil)
		if e != nil {
			return e
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return model.OrderRecord{}, false
	}
	return rec, true
}

func (b *BadgerStore) Range(fn func(rec model.OrderRecord) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec model.OrderRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAll replaces the full contents with the snapshot records.
func (b *BadgerStore) LoadAll(orders []model.OrderRecord) {
	_ = b.db.Update(func(txn *badger.Txn) error {
		// Collect keys first to avoid mutating while iterating.
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var keysToDelete [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keysToDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, rec := range orders {
			if rec.ID == "" {
				continue
			}
			bytes, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(rec.ID), bytes); err != nil {
				return err
			}
		}
		return nil
	})
}
