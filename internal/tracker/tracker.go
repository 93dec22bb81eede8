// Package tracker ties the order ledger to the derived dashboard summaries.
// It is the single logical owner of the in-process state: mutations go
// through Upsert/UpdateStatus, reads through CustomerMetrics/SellerMetrics,
// and the recompute in between runs on an explicit dirty-flag + Flush cycle.
//
// Public methods never propagate errors: faults are absorbed and logged,
// favoring availability of a possibly stale or zeroed answer over raising
// errors to the UI layer.
package tracker

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"oms/internal/journal"
	"oms/internal/ledger"
	"oms/internal/metrics"
	"oms/internal/model"
	"oms/internal/reconcile"
	"oms/internal/snapshot"
	"oms/internal/stats"
)

type Tracker struct {
	mu          sync.Mutex
	store       ledger.Store
	journal     journal.Writer    // optional; best-effort
	reg         *metrics.Registry // optional
	customer    stats.CustomerMetrics
	sellers     map[string]stats.SellerMetrics
	dirty       bool
	recomputing bool
	seq         int64
}

// New creates a tracker over the given ledger backend. jw and reg may be nil.
func New(store ledger.Store, jw journal.Writer, reg *metrics.Registry) *Tracker {
	return &Tracker{
		store:    store,
		journal:  jw,
		reg:      reg,
		customer: stats.EmptyCustomer(),
		sellers:  make(map[string]stats.SellerMetrics),
	}
}

// Upsert normalizes a loose checkout payload and inserts it. A duplicate id
// is a no-op (first write wins); a missing id rejects the order with a logged
// warning. Reports whether a record was inserted.
func (t *Tracker) Upsert(raw model.RawOrder) bool {
	if strings.TrimSpace(raw.ID) == "" {
		log.Printf("tracker: rejecting order without id")
		if t.reg != nil {
			t.reg.OrdersRejected.Inc()
		}
		return false
	}
	rec := reconcile.NormalizeOrder(raw)
	inserted, err := t.store.Insert(rec)
	if err != nil {
		log.Printf("tracker: insert %s: %v", rec.ID, err)
		return false
	}
	if !inserted {
		if t.reg != nil {
			t.reg.OrdersDuplicate.Inc()
		}
		return false
	}
	if t.reg != nil {
		t.reg.OrdersUpserted.Inc()
	}
	t.appendJournal(journal.Event{Kind: journal.KindUpsert, Order: &rec})
	t.markDirty()
	return true
}

// UpdateStatus mutates the status of an existing record in place. Unknown id
// is a no-op. Reports whether a record changed.
func (t *Tracker) UpdateStatus(id string, status string) bool {
	updated, err := t.store.UpdateStatus(id, status)
	if err != nil {
		log.Printf("tracker: update status %s: %v", id, err)
		return false
	}
	if !updated {
		return false
	}
	if t.reg != nil {
		t.reg.StatusUpdates.Inc()
	}
	t.appendJournal(journal.Event{Kind: journal.KindStatus, OrderID: id, Status: status})
	t.markDirty()
	return true
}

func (t *Tracker) appendJournal(e journal.Event) {
	if t.journal == nil {
		return
	}
	t.mu.Lock()
	t.seq++
	e.Seq = t.seq
	t.mu.Unlock()
	e.TS = time.Now().UTC().Unix()
	if err := t.journal.Append(e); err != nil {
		// Fire-and-forget: journaling must not fail the mutation.
		log.Printf("tracker: journal append: %v", err)
		return
	}
	if t.reg != nil {
		t.reg.JournalAppended.Inc()
	}
}

func (t *Tracker) markDirty() {
	t.mu.Lock()
	t.dirty = true
	t.mu.Unlock()
}

// Flush recomputes the summaries if any mutation happened since the last run.
// A flush arriving while one is in flight is dropped rather than queued; the
// dirty flag survives a failed run so a later flush retries. Recompute is
// idempotent, so redundant flushes are safe.
func (t *Tracker) Flush() {
	t.mu.Lock()
	if !t.dirty {
		t.mu.Unlock()
		return
	}
	if t.recomputing {
		if t.reg != nil {
			t.reg.RecomputeDropped.Inc()
		}
		t.mu.Unlock()
		return
	}
	t.recomputing = true
	t.dirty = false
	t.mu.Unlock()

	start := time.Now()
	sum, err := t.recompute()

	t.mu.Lock()
	t.recomputing = false
	if err != nil {
		// Keep the previous summaries rather than a partial result.
		t.dirty = true
		t.mu.Unlock()
		log.Printf("tracker: recompute failed, keeping previous summaries: %v", err)
		if t.reg != nil {
			t.reg.RecomputeErrors.Inc()
		}
		return
	}
	t.customer = sum.Customer
	t.sellers = sum.Sellers
	t.mu.Unlock()
	if t.reg != nil {
		t.reg.RecomputeRuns.Inc()
		t.reg.RecomputeSec.Observe(time.Since(start).Seconds())
	}
}

func (t *Tracker) recompute() (sum stats.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recompute panic: %v", r)
		}
	}()
	records, err := ledger.All(t.store)
	if err != nil {
		return stats.Summary{}, fmt.Errorf("read ledger: %w", err)
	}
	return stats.Recompute(records), nil
}

// Seq returns the number of journal events appended so far. Snapshot
// manifests record it as the journal offset the snapshot covers.
func (t *Tracker) Seq() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// CustomerMetrics returns the last recomputed customer summary.
func (t *Tracker) CustomerMetrics() stats.CustomerMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.customer
}

// SellerMetrics answers a seller lookup even when no precomputed entry
// matches the caller's id format: exact key first, then a loose match over
// the precomputed keys, then an on-demand computation from the raw ledger
// (not cached), and finally a zeroed summary.
func (t *Tracker) SellerMetrics(sellerID string) stats.SellerMetrics {
	t.mu.Lock()
	if m, ok := t.sellers[sellerID]; ok {
		t.mu.Unlock()
		return m
	}
	keys := make([]string, 0, len(t.sellers))
	for k := range t.sellers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if reconcile.Match(k, sellerID) {
			m := t.sellers[k]
			t.mu.Unlock()
			return m
		}
	}
	t.mu.Unlock()

	records, err := ledger.All(t.store)
	if err != nil {
		log.Printf("tracker: seller lookup %s: %v", sellerID, err)
		return stats.EmptySeller()
	}
	if matched := reconcile.OrdersForSeller(records, sellerID); len(matched) > 0 {
		return stats.SellerSummary(matched)
	}
	return stats.EmptySeller()
}

// ExportState captures the full persistable state.
func (t *Tracker) ExportState() snapshot.State {
	records, err := ledger.All(t.store)
	if err != nil {
		log.Printf("tracker: export state: %v", err)
		records = nil
	}
	if records == nil {
		records = []model.OrderRecord{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot.State{
		Orders:   records,
		Customer: t.customer,
		Sellers:  t.sellers,
		SavedAt:  time.Now().UTC().Unix(),
	}
}

// LoadState replaces the ledger with the persisted orders, adopts the stored
// summaries as a starting point, and recomputes once to reconcile any drift
// between the stored summaries and the stored orders.
func (t *Tracker) LoadState(st snapshot.State) {
	t.store.LoadAll(st.Orders)
	t.mu.Lock()
	t.customer = st.Customer
	if st.Sellers != nil {
		t.sellers = st.Sellers
	} else {
		t.sellers = make(map[string]stats.SellerMetrics)
	}
	t.seq = int64(len(st.Orders))
	t.dirty = true
	t.mu.Unlock()
	t.Flush()
}
