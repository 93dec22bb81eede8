package ledger

import (
	"testing"

	"oms/internal/model"
)

func TestPebbleStore_InsertAndUpdate(t *testing.T) {
	dir := t.TempDir()
	st, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	inserted, err := st.Insert(model.OrderRecord{ID: "o1", SellerID: "sellerA", Status: "pending", TotalPrice: 100})
	if err != nil {
		t.Fatalf("insert err: %v", err)
	}
	if !inserted {
		t.Fatalf("first insert should insert")
	}

	// duplicate id => first write wins
	inserted, err = st.Insert(model.OrderRecord{ID: "o1", Status: "delivered", TotalPrice: 999})
	if err != nil {
		t.Fatalf("insert err: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate should not insert")
	}
	rec, ok := st.Get("o1")
	if !ok || rec.Status != "pending" || rec.TotalPrice != 100 {
		t.Fatalf("stored record should equal first insert: %+v", rec)
	}

	updated, err := st.UpdateStatus("o1", "delivered")
	if err != nil || !updated {
		t.Fatalf("update: updated=%v err=%v", updated, err)
	}
	rec, _ = st.Get("o1")
	if rec.Status != "delivered" || rec.SellerID != "sellerA" {
		t.Fatalf("update should only touch status: %+v", rec)
	}

	updated, err = st.UpdateStatus("missing", "delivered")
	if err != nil || updated {
		t.Fatalf("unknown id should be a no-op: updated=%v err=%v", updated, err)
	}
}

func TestPebbleStore_LoadAllAndRange(t *testing.T) {
	dir := t.TempDir()
	st, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	_, _ = st.Insert(model.OrderRecord{ID: "stale"})
	st.LoadAll([]model.OrderRecord{
		{ID: "o1", Status: "pending"},
		{ID: "o2", Status: "delivered"},
	})

	if _, ok := st.Get("stale"); ok {
		t.Fatalf("LoadAll should replace prior contents")
	}
	count := 0
	if err := st.Range(func(rec model.OrderRecord) error { count++; return nil }); err != nil {
		t.Fatalf("range err: %v", err)
	}
	if count != 2 {
		t.Fatalf("range count=%d want=2", count)
	}
}
