package ledger

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"oms/internal/model"
)

// PebbleStore implements Store on PebbleDB, keyed by order id.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 8,
		WALBytesPerSync:       1 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func encodeRecord(rec model.OrderRecord) ([]byte, error) { return json.Marshal(rec) }

func decodeRecord(val []byte) (model.OrderRecord, error) {
	var rec model.OrderRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return model.OrderRecord{}, err
	}
	return rec, nil
}

func (p *PebbleStore) Insert(rec model.OrderRecord) (bool, error) {
	if rec.ID == "" {
		return false, fmt.Errorf("insert: empty order id")
	}
	k := []byte(rec.ID)
	_, closer, err := p.db.Get(k)
	if err == nil {
		_ = closer.Close()
		return false, nil
	}
	if err != pebble.ErrNotFound {
		return false, err
	}
	b, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}
	if err := p.db.Set(k, b, pebble.NoSync); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PebbleStore) UpdateStatus(id string, status string) (bool, error) {
	k := []byte(id)
	v, closer, err := p.db.Get(k)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	rec, derr := decodeRecord(v)
	_ = closer.Close()
	if derr != nil {
		return false, derr
	}
	rec.Status = status
	b, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}
	if err := p.db.Set(k, b, pebble.NoSync); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PebbleStore) Get(id string) (model.OrderRecord, bool) {
	v, closer, err := p.db.Get([]byte(id))
	if err != nil {
		return model.OrderRecord{}, false
	}
	defer closer.Close()
	rec, e := decodeRecord(v)
	if e != nil {
		return model.OrderRecord{}, false
	}
	return rec, true
}

func (p *PebbleStore) Range(fn func(rec model.OrderRecord) error) error {
	it, _ := p.db.NewIter(nil)
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		v := append([]byte(nil), it.Value()...)
		rec, err := decodeRecord(v)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll replaces the full contents with the snapshot records.
func (p *PebbleStore) LoadAll(orders []model.OrderRecord) {
	var toDelete [][]byte
	it, _ := p.db.NewIter(nil)
	for it.First(); it.Valid(); it.Next() {
		k := append([]byte(nil), it.Key()...)
		toDelete = append(toDelete, k)
	}
	it.Close()
	if len(toDelete) > 0 {
		wb := p.db.NewBatch()
		for _, k := range toDelete {
			_ = wb.Delete(k, nil)
		}
		_ = wb.Commit(pebble.NoSync)
		_ = wb.Close()
	}
	if len(orders) > 0 {
		wb := p.db.NewBatch()
		for _, rec := range orders {
			if rec.ID == "" {
				continue
			}
			b, err := encodeRecord(rec)
			if err != nil {
				continue
			}
			_ = wb.Set([]byte(rec.ID), b, nil)
		}
		_ = wb.Commit(pebble.NoSync)
		_ = wb.Close()
	}
}
