// Package reconcile resolves inconsistently shaped seller identifiers into
// comparable canonical keys. Upstream callers supply seller references as a
// bare id string, a nested object, or a separate info object, and lookup ids
// do not always match stored keys exactly, so matching is deliberately loose.
package reconcile

import (
	"strings"

	"oms/internal/model"
)

// Canonicalize reduces a possibly ambiguous seller reference to a single key.
// Precedence: the info object's id, then the seller object's id when the raw
// id is absent or the unknown sentinel, then the raw id itself, then the
// sentinel. The result keeps its original case; comparisons downstream are
// case-insensitive.
func Canonicalize(rawID string, seller, info model.SellerRef) string {
	if id := refID(info); id != "" {
		return id
	}
	if rawID == "" || strings.EqualFold(rawID, model.UnknownID) {
		if id := refID(seller); id != "" {
			return id
		}
	}
	if rawID != "" {
		return rawID
	}
	return model.UnknownID
}

// Match reports whether two seller keys refer to the same seller: true on
// case-insensitive equality, or when one is a non-empty substring of the
// other. The substring fallback bridges ids that differ by prefix/suffix
// wrapping (e.g. an ObjectId embedded in a longer composite string). It is a
// loose heuristic, not an exact-match guarantee.
func Match(key, candidate string) bool {
	a := strings.ToLower(strings.TrimSpace(key))
	b := strings.ToLower(strings.TrimSpace(candidate))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// OrdersForSeller filters records whose canonical seller id or captured
// seller reference matches the query id. No match yields an empty slice,
// never an error.
func OrdersForSeller(records []model.OrderRecord, sellerID string) []model.OrderRecord {
	var out []model.OrderRecord
	for _, rec := range records {
		if Match(rec.SellerID, sellerID) || Match(refID(rec.SellerRef), sellerID) {
			out = append(out, rec)
		}
	}
	return out
}

// NormalizeOrder converts a loose checkout payload into a ledger record,
// resolving the seller reference through Canonicalize.
func NormalizeOrder(raw model.RawOrder) model.OrderRecord {
	rec := model.Normalize(raw)
	rawID, seller, info := model.SellerRefs(raw)
	rec.SellerID = Canonicalize(rawID, seller, info)
	return rec
}

func refID(ref model.SellerRef) string {
	if ref.ID != "" {
		return ref.ID
	}
	return ref.AltID
}
