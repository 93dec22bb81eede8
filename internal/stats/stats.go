// Package stats derives dashboard summaries from the ledger contents. The
// derivation is a pure, wholesale recomputation: the summaries are disposable
// caches, and the same ledger contents always produce the same output.
package stats

import (
	"sort"
	"time"

	"oms/internal/model"
	"oms/internal/reconcile"
)

const (
	maxRecent  = 5
	maxPopular = 5
)

// CustomerMetrics is the customer-dashboard summary over the whole ledger.
type CustomerMetrics struct {
	TotalOrders     int                 `json:"totalOrders"`
	PendingOrders   int                 `json:"pendingOrders"`
	CompletedOrders int                 `json:"completedOrders"`
	TotalSpent      float64             `json:"totalSpent"`
	RecentOrders    []model.OrderRecord `json:"recentOrders"`
}

// PopularItem is one entry of a seller's top-items ranking.
type PopularItem struct {
	Name  string  `json:"name"`
	Count float64 `json:"count"`
}

// SellerMetrics is the seller-dashboard summary for one canonical seller key.
type SellerMetrics struct {
	TotalOrders     int                 `json:"totalOrders"`
	PendingOrders   int                 `json:"pendingOrders"`
	CompletedOrders int                 `json:"completedOrders"`
	TotalRevenue    float64             `json:"totalRevenue"`
	PopularItems    []PopularItem       `json:"popularItems"`
	RecentOrders    []model.OrderRecord `json:"recentOrders"`
}

// Summary is the full output of one recompute.
type Summary struct {
	Customer CustomerMetrics          `json:"customerMetrics"`
	Sellers  map[string]SellerMetrics `json:"sellerMetrics"`
}

// EmptyCustomer returns a zeroed customer summary with non-nil slices.
func EmptyCustomer() CustomerMetrics {
	return CustomerMetrics{RecentOrders: []model.OrderRecord{}}
}

// EmptySeller returns a zeroed seller summary with non-nil slices.
func EmptySeller() SellerMetrics {
	return SellerMetrics{PopularItems: []PopularItem{}, RecentOrders: []model.OrderRecord{}}
}

// Recompute derives both summary shapes from the current ledger records.
// Pure function: no side effects, no I/O.
func Recompute(records []model.OrderRecord) Summary {
	sum := Summary{
		Customer: customerSummary(records),
		Sellers:  make(map[string]SellerMetrics),
	}
	groups := make(map[string][]model.OrderRecord)
	for _, rec := range records {
		// Grouping re-derives the key from the captured reference so that
		// records canonicalized under older heuristics still land together.
		key := reconcile.Canonicalize(rec.SellerID, rec.SellerRef, model.SellerRef{})
		groups[key] = append(groups[key], rec)
	}
	for key, group := range groups {
		sum.Sellers[key] = SellerSummary(group)
	}
	return sum
}

func customerSummary(records []model.OrderRecord) CustomerMetrics {
	m := EmptyCustomer()
	for _, rec := range records {
		m.TotalOrders++
		switch {
		case model.IsPendingLike(rec.Status):
			m.PendingOrders++
		case model.IsCompleted(rec.Status):
			m.CompletedOrders++
			m.TotalSpent += rec.TotalPrice
		}
	}
	m.RecentOrders = recentOrders(records)
	return m
}

// SellerSummary computes one seller's metrics from exactly the given records.
// Also used for on-demand fallback computation on lookup cache miss.
func SellerSummary(records []model.OrderRecord) SellerMetrics {
	m := EmptySeller()
	counts := make(map[string]float64)
	for _, rec := range records {
		m.TotalOrders++
		switch {
		case model.IsPendingLike(rec.Status):
			m.PendingOrders++
		case model.IsCompleted(rec.Status):
			m.CompletedOrders++
			m.TotalRevenue += rec.TotalPrice
		}
		for _, it := range rec.Items {
			if it.Name == "" {
				continue
			}
			counts[it.Name] += it.Quantity
		}
	}
	m.PopularItems = topItems(counts)
	m.RecentOrders = recentOrders(records)
	return m
}

func topItems(counts map[string]float64) []PopularItem {
	items := make([]PopularItem, 0, len(counts))
	for name, count := range counts {
		items = append(items, PopularItem{Name: name, Count: count})
	}
	// Ties broken by name so repeated recomputes yield identical output.
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Name < items[j].Name
	})
	if len(items) > maxPopular {
		items = items[:maxPopular]
	}
	return items
}

func recentOrders(records []model.OrderRecord) []model.OrderRecord {
	out := make([]model.OrderRecord, len(records))
	copy(out, records)
	sort.Slice(out, func(i, j int) bool { return moreRecent(out[i], out[j]) })
	if len(out) > maxRecent {
		out = out[:maxRecent]
	}
	return out
}

// moreRecent orders records newest first. Timestamps are RFC3339 when the
// checkout collaborator behaves; otherwise the ISO-style strings still sort
// lexicographically. Ties fall back to id for determinism.
func moreRecent(a, b model.OrderRecord) bool {
	ta, aok := parseTime(a.CreatedAt)
	tb, bok := parseTime(b.CreatedAt)
	if aok && bok {
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
	} else if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID > b.ID
}

func parseTime(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
