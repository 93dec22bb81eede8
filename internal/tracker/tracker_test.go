package tracker

import (
	"errors"
	"fmt"
	"testing"

	"oms/internal/journal"
	"oms/internal/ledger"
	"oms/internal/model"
	"oms/internal/snapshot"
	"oms/internal/stats"
)

func newTestTracker() *Tracker {
	return New(ledger.NewInMemoryStore(), nil, nil)
}

func TestUpsert_RejectsMissingID(t *testing.T) {
	trk := newTestTracker()
	if trk.Upsert(model.RawOrder{RestaurantID: "sellerA"}) {
		t.Fatalf("order without id should be rejected")
	}
	if trk.Upsert(model.RawOrder{ID: "   "}) {
		t.Fatalf("blank id should be rejected")
	}
	trk.Flush()
	if got := trk.CustomerMetrics().TotalOrders; got != 0 {
		t.Fatalf("rejected orders should not count: %d", got)
	}
}

func TestUpsert_DuplicateKeepsFirst(t *testing.T) {
	trk := newTestTracker()
	if !trk.Upsert(model.RawOrder{ID: "o1", RestaurantID: "sellerA", Status: "pending", TotalPrice: 100.0}) {
		t.Fatalf("first upsert should insert")
	}
	if trk.Upsert(model.RawOrder{ID: "o1", RestaurantID: "sellerB", Status: "delivered", TotalPrice: 999.0}) {
		t.Fatalf("duplicate upsert should be a no-op")
	}
	trk.Flush()
	m := trk.SellerMetrics("sellerA")
	if m.TotalOrders != 1 || m.PendingOrders != 1 {
		t.Fatalf("first write should win: %+v", m)
	}
	if other := trk.SellerMetrics("sellerB"); other.TotalOrders != 0 {
		t.Fatalf("duplicate should not create sellerB: %+v", other)
	}
}

func TestFlush_DirtyCycle(t *testing.T) {
	trk := newTestTracker()

	// Nothing dirty: flush is a no-op and summaries stay zeroed.
	trk.Flush()
	if got := trk.CustomerMetrics(); got.TotalOrders != 0 {
		t.Fatalf("clean flush changed summaries: %+v", got)
	}

	trk.Upsert(model.RawOrder{ID: "o1", RestaurantID: "sellerA", Status: "pending", TotalPrice: 50.0})

	// Summaries are stale until flushed.
	if got := trk.CustomerMetrics(); got.TotalOrders != 0 {
		t.Fatalf("summaries should be stale before flush: %+v", got)
	}
	trk.Flush()
	if got := trk.CustomerMetrics(); got.TotalOrders != 1 || got.PendingOrders != 1 {
		t.Fatalf("flush should fold in the upsert: %+v", got)
	}

	trk.UpdateStatus("o1", "delivered")
	trk.Flush()
	got := trk.CustomerMetrics()
	if got.PendingOrders != 0 || got.CompletedOrders != 1 || got.TotalSpent != 50 {
		t.Fatalf("status change should move the order to completed: %+v", got)
	}
}

func TestFlush_DroppedWhileRecomputing(t *testing.T) {
	trk := newTestTracker()
	trk.Upsert(model.RawOrder{ID: "o1", RestaurantID: "sellerA", Status: "pending"})

	// Simulate a recompute in flight.
	trk.mu.Lock()
	trk.recomputing = true
	trk.mu.Unlock()

	trk.Flush()
	if got := trk.CustomerMetrics(); got.TotalOrders != 0 {
		t.Fatalf("overlapping flush should be dropped: %+v", got)
	}
	trk.mu.Lock()
	dirty := trk.dirty
	trk.recomputing = false
	trk.mu.Unlock()
	if !dirty {
		t.Fatalf("dirty flag should survive a dropped flush")
	}

	trk.Flush()
	if got := trk.CustomerMetrics(); got.TotalOrders != 1 {
		t.Fatalf("later flush should catch up: %+v", got)
	}
}

type failingStore struct {
	ledger.Store
	fail bool
}

func (f *failingStore) Range(fn func(model.OrderRecord) error) error {
	if f.fail {
		return errors.New("backend unavailable")
	}
	return f.Store.Range(fn)
}

func TestFlush_FailureKeepsPreviousSummaries(t *testing.T) {
	fs := &failingStore{Store: ledger.NewInMemoryStore()}
	trk := New(fs, nil, nil)

	trk.Upsert(model.RawOrder{ID: "o1", RestaurantID: "sellerA", Status: "pending"})
	trk.Flush()
	if got := trk.CustomerMetrics(); got.TotalOrders != 1 {
		t.Fatalf("setup flush: %+v", got)
	}

	trk.Upsert(model.RawOrder{ID: "o2", RestaurantID: "sellerA", Status: "pending"})
	fs.fail = true
	trk.Flush()
	if got := trk.CustomerMetrics(); got.TotalOrders != 1 {
		t.Fatalf("failed recompute should keep previous summaries: %+v", got)
	}

	fs.fail = false
	trk.Flush()
	if got := trk.CustomerMetrics(); got.TotalOrders != 2 {
		t.Fatalf("dirty flag should survive the failure: %+v", got)
	}
}

func TestSellerMetrics_LookupTiers(t *testing.T) {
	trk := newTestTracker()
	trk.Upsert(model.RawOrder{ID: "o1", RestaurantID: "seller-xyz", Status: "delivered", TotalPrice: 100.0})
	trk.Flush()

	// Tier 1: exact key.
	if m := trk.SellerMetrics("seller-xyz"); m.TotalOrders != 1 {
		t.Fatalf("exact lookup: %+v", m)
	}
	// Tier 2: case-insensitive match against the precomputed keys.
	if m := trk.SellerMetrics("SELLER-XYZ"); m.TotalOrders != 1 || m.TotalRevenue != 100 {
		t.Fatalf("loose lookup: %+v", m)
	}
	// Tier 2 also covers substring containment.
	if m := trk.SellerMetrics("xyz"); m.TotalOrders != 1 {
		t.Fatalf("substring lookup: %+v", m)
	}
	// Tier 4: nothing anywhere matches.
	m := trk.SellerMetrics("nobody")
	if m.TotalOrders != 0 || m.PopularItems == nil || m.RecentOrders == nil {
		t.Fatalf("no-match should return zeroed non-nil summary: %+v", m)
	}
}

func TestSellerMetrics_FallbackScanNotCached(t *testing.T) {
	trk := newTestTracker()
	trk.Upsert(model.RawOrder{ID: "o1", RestaurantID: "sellerA", Status: "pending"})
	// No flush: the precomputed map is empty, forcing the raw ledger scan.
	m := trk.SellerMetrics("sellerA")
	if m.TotalOrders != 1 || m.PendingOrders != 1 {
		t.Fatalf("fallback scan: %+v", m)
	}
	trk.mu.Lock()
	_, cached := trk.sellers["sellerA"]
	trk.mu.Unlock()
	if cached {
		t.Fatalf("fallback scan must not populate the cache")
	}
}

type memJournal struct {
	events []journal.Event
}

func (m *memJournal) Append(e journal.Event) error {
	m.events = append(m.events, e)
	return nil
}

func TestJournal_SequencedEvents(t *testing.T) {
	jw := &memJournal{}
	trk := New(ledger.NewInMemoryStore(), jw, nil)

	trk.Upsert(model.RawOrder{ID: "o1", RestaurantID: "sellerA", Status: "pending"})
	trk.UpdateStatus("o1", "delivered")
	trk.UpdateStatus("missing", "delivered") // no-op, no event

	if len(jw.events) != 2 {
		t.Fatalf("want 2 journal events, got %d: %+v", len(jw.events), jw.events)
	}
	if jw.events[0].Kind != journal.KindUpsert || jw.events[0].Seq != 1 {
		t.Fatalf("first event: %+v", jw.events[0])
	}
	if jw.events[0].Order == nil || jw.events[0].Order.SellerID != "sellerA" {
		t.Fatalf("upsert event should carry the normalized record: %+v", jw.events[0].Order)
	}
	if jw.events[1].Kind != journal.KindStatus || jw.events[1].Seq != 2 || jw.events[1].Status != "delivered" {
		t.Fatalf("second event: %+v", jw.events[1])
	}
	if trk.Seq() != 2 {
		t.Fatalf("seq: %d", trk.Seq())
	}
}

func TestExportAndLoadState(t *testing.T) {
	trk := newTestTracker()
	for i := 0; i < 3; i++ {
		trk.Upsert(model.RawOrder{
			ID:           fmt.Sprintf("o%d", i),
			RestaurantID: "sellerA",
			Status:       "pending",
			TotalPrice:   float64(10 * (i + 1)),
		})
	}
	trk.UpdateStatus("o0", "delivered")
	trk.Flush()
	st := trk.ExportState()
	if len(st.Orders) != 3 || st.Customer.TotalOrders != 3 {
		t.Fatalf("exported state: orders=%d customer=%+v", len(st.Orders), st.Customer)
	}

	fresh := newTestTracker()
	fresh.LoadState(st)
	got := fresh.CustomerMetrics()
	if got.TotalOrders != 3 || got.CompletedOrders != 1 || got.TotalSpent != 10 {
		t.Fatalf("restored summaries: %+v", got)
	}
	if fresh.Seq() != 3 {
		t.Fatalf("restored seq: %d", fresh.Seq())
	}
}

func TestLoadState_ReconcilesDriftedSummaries(t *testing.T) {
	// A snapshot whose stored summaries disagree with its stored orders:
	// the load recomputes from the orders, which are authoritative.
	st := snapshot.State{
		Orders: []model.OrderRecord{
			{ID: "o1", SellerID: "sellerA", SellerRef: model.SellerRef{ID: "sellerA"}, Status: "delivered", TotalPrice: 70},
		},
		Customer: stats.CustomerMetrics{TotalOrders: 99, TotalSpent: 12345},
	}
	trk := newTestTracker()
	trk.LoadState(st)
	got := trk.CustomerMetrics()
	if got.TotalOrders != 1 || got.TotalSpent != 70 {
		t.Fatalf("summaries should be recomputed from orders: %+v", got)
	}
}
