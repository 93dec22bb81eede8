// Package ingest defines the wire shape the checkout and order-management
// collaborators publish, and applies it to a tracker.
package ingest

import (
	"log"

	"oms/internal/model"
	"oms/internal/tracker"
)

const (
	KindOrderCreated = "order.created"
	KindOrderStatus  = "order.status"
)

// Event is one collaborator message: a new checkout order (loose shape) or a
// status change for an existing order.
type Event struct {
	Kind    string          `json:"kind"`
	Order   *model.RawOrder `json:"order,omitempty"`
	OrderID string          `json:"orderId,omitempty"`
	Status  string          `json:"status,omitempty"`
}

// Apply routes the event into the tracker. Unknown kinds are logged and
// dropped. Reports whether the ledger changed.
func Apply(t *tracker.Tracker, e Event) bool {
	switch e.Kind {
	case KindOrderCreated:
		if e.Order == nil {
			log.Printf("ingest: order.created without order payload")
			return false
		}
		return t.Upsert(*e.Order)
	case KindOrderStatus:
		return t.UpdateStatus(e.OrderID, e.Status)
	default:
		log.Printf("ingest: unknown event kind %q", e.Kind)
		return false
	}
}
