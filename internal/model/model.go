package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// UnknownID is the sentinel for absent customer or seller references.
const UnknownID = "unknown"

// Statuses the dashboards group on. The status field itself is an open set;
// anything outside these values counts as neither pending nor completed.
const (
	StatusPending        = "pending"
	StatusPreparing      = "preparing"
	StatusOnTheWay       = "on-the-way"
	StatusOutForDelivery = "out for delivery"
	StatusDelivered      = "delivered"
)

// Item is one line of an order.
type Item struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// SellerRef keeps the raw seller reference fields as supplied by the caller.
// Canonicalization is best-effort at insert time, so the raw fields are
// retained to allow redoing it later.
type SellerRef struct {
	ID    string `json:"id,omitempty"`
	AltID string `json:"altId,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Empty reports whether the reference carries no usable field.
func (r SellerRef) Empty() bool {
	return r.ID == "" && r.AltID == "" && r.Name == ""
}

// RawOrder is the loose shape the checkout collaborator supplies. Any subset
// of fields may be present. The seller reference may arrive as a bare id
// string, a nested object with id/_id, or a separate info object.
type RawOrder struct {
	ID             string          `json:"id"`
	RestaurantID   any             `json:"restaurantId"`
	Restaurant     any             `json:"restaurant"`
	RestaurantInfo any             `json:"restaurantInfo"`
	UserID         string          `json:"userId"`
	Status         string          `json:"status"`
	TotalPrice     any             `json:"totalPrice"`
	Total          any             `json:"total"`
	CreatedAt      string          `json:"createdAt"`
	Items          json.RawMessage `json:"items"`
}

// OrderRecord is the normalized, ledger-owned form of an order. Immutable
// once inserted except for Status.
type OrderRecord struct {
	ID         string    `json:"id"`
	SellerID   string    `json:"sellerId"`
	SellerRef  SellerRef `json:"sellerRef"`
	CustomerID string    `json:"customerId"`
	Status     string    `json:"status"`
	TotalPrice float64   `json:"totalPrice"`
	CreatedAt  string    `json:"createdAt"`
	Items      []Item    `json:"items"`
}

// Now returns the normalization clock. Split for testability.
var Now = func() time.Time { return time.Now().UTC() }

// Normalize converts a loose checkout payload into an OrderRecord, defaulting
// every missing field. SellerID is left empty; the reconciler fills it from
// the captured references.
func Normalize(raw RawOrder) OrderRecord {
	rec := OrderRecord{
		ID:         strings.TrimSpace(raw.ID),
		CustomerID: raw.UserID,
		Status:     raw.Status,
		TotalPrice: coerceAmount(raw.TotalPrice, raw.Total),
		CreatedAt:  raw.CreatedAt,
		Items:      normalizeItems(raw.Items),
	}
	if rec.CustomerID == "" {
		rec.CustomerID = UnknownID
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = Now().Format(time.RFC3339)
	}
	rawID, seller, info := SellerRefs(raw)
	rec.SellerRef = mergeRefs(rawID, seller, info)
	return rec
}

// SellerRefs extracts the three possible seller reference shapes from a raw
// order: the bare id (restaurantId as string), the nested seller object
// (restaurant, or restaurantId when it is an object), and the info object.
func SellerRefs(raw RawOrder) (rawID string, seller SellerRef, info SellerRef) {
	switch v := raw.RestaurantID.(type) {
	case string:
		rawID = strings.TrimSpace(v)
	case map[string]any:
		seller = refFromMap(v)
	}
	if seller.Empty() {
		if m, ok := raw.Restaurant.(map[string]any); ok {
			seller = refFromMap(m)
		}
	}
	if m, ok := raw.RestaurantInfo.(map[string]any); ok {
		info = refFromMap(m)
	}
	return rawID, seller, info
}

func refFromMap(m map[string]any) SellerRef {
	var r SellerRef
	if s, ok := m["id"].(string); ok {
		r.ID = strings.TrimSpace(s)
	}
	if s, ok := m["_id"].(string); ok {
		r.AltID = strings.TrimSpace(s)
	}
	if s, ok := m["name"].(string); ok {
		r.Name = strings.TrimSpace(s)
	}
	return r
}

// mergeRefs picks the stored SellerRef: the info object wins, then the nested
// seller object, then the bare id.
func mergeRefs(rawID string, seller, info SellerRef) SellerRef {
	if !info.Empty() {
		return info
	}
	if !seller.Empty() {
		return seller
	}
	if rawID != "" {
		return SellerRef{ID: rawID}
	}
	return SellerRef{}
}

func normalizeItems(raw json.RawMessage) []Item {
	if len(raw) == 0 {
		return []Item{}
	}
	var in []struct {
		Name     string `json:"name"`
		Quantity any    `json:"quantity"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return []Item{}
	}
	items := make([]Item, 0, len(in))
	for _, it := range in {
		items = append(items, Item{Name: it.Name, Quantity: coerceNumber(it.Quantity)})
	}
	return items
}

// coerceAmount resolves totalPrice with total as fallback: a missing, invalid
// or zero totalPrice falls through to total.
func coerceAmount(price, total any) float64 {
	if v := coerceNumber(price); v > 0 {
		return v
	}
	return coerceNumber(total)
}

// coerceNumber turns a loosely typed JSON value into a finite number >= 0.
func coerceNumber(v any) float64 {
	f, ok := asNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var pendingLike = map[string]struct{}{
	StatusPending:        {},
	StatusPreparing:      {},
	StatusOnTheWay:       {},
	StatusOutForDelivery: {},
}

// IsPendingLike reports whether the status belongs to the pending group.
// Comparison is case-insensitive.
func IsPendingLike(status string) bool {
	_, ok := pendingLike[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

// IsCompleted reports whether the status counts as delivered.
func IsCompleted(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), StatusDelivered)
}
