package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"oms/internal/ingest"
	"oms/internal/model"
)

func main() {
	var count int
	var outputFile string
	flag.IntVar(&count, "count", 100, "number of order events to generate")
	flag.StringVar(&outputFile, "output", "orders.events.jsonl", "output file")
	flag.Parse()

	if err := generateEvents(count, outputFile); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

type seller struct {
	id   string
	name string
}

func generateEvents(count int, outputFile string) error {
	file, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	sellers := []seller{
		{"64a1f0b2c9e77a0012d4aa01", "Spice Garden"},
		{"64a1f0b2c9e77a0012d4aa02", "Dosa Corner"},
		{"64a1f0b2c9e77a0012d4aa03", "Biryani House"},
	}
	dishes := []string{"Masala Dosa", "Paneer Tikka", "Chicken Biryani", "Veg Thali", "Gulab Jamun"}
	statuses := []string{"pending", "Preparing", "on-the-way", "out for delivery", "Delivered"}
	customers := []string{"u1001", "u1002", "u1003"}

	baseTime := time.Now().UTC()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	enc := json.NewEncoder(file)
	for i := 0; i < count; i++ {
		s := sellers[rng.Intn(len(sellers))]
		raw := model.RawOrder{
			ID:        fmt.Sprintf("ord-%04d", i+1),
			UserID:    customers[rng.Intn(len(customers))],
			Status:    statuses[rng.Intn(len(statuses))],
			CreatedAt: baseTime.Add(time.Duration(i*10) * time.Second).Format(time.RFC3339),
			Items:     randomItems(rng, dishes),
		}
		// Rotate through the three seller reference shapes upstream callers
		// actually send: bare id, nested object, and a separate info object.
		switch i % 3 {
		case 0:
			raw.RestaurantID = s.id
		case 1:
			raw.Restaurant = map[string]any{"_id": s.id, "name": s.name}
		case 2:
			raw.RestaurantInfo = map[string]any{"id": s.id, "name": s.name}
		}
		// Some callers send total instead of totalPrice.
		price := float64(100 + rng.Intn(900))
		if i%4 == 0 {
			raw.Total = price
		} else {
			raw.TotalPrice = price
		}

		ev := ingest.Event{Kind: ingest.KindOrderCreated, Order: &raw}
		if err := enc.Encode(&ev); err != nil {
			return fmt.Errorf("encode event %d: %w", i+1, err)
		}

		// Every fifth order also gets a later delivery update.
		if i%5 == 0 {
			up := ingest.Event{Kind: ingest.KindOrderStatus, OrderID: raw.ID, Status: "delivered"}
			if err := enc.Encode(&up); err != nil {
				return fmt.Errorf("encode status event %d: %w", i+1, err)
			}
		}
	}

	log.Printf("generated %d order events to %s", count, outputFile)
	return nil
}

func randomItems(rng *rand.Rand, dishes []string) json.RawMessage {
	n := 1 + rng.Intn(3)
	items := make([]model.Item, 0, n)
	for j := 0; j < n; j++ {
		items = append(items, model.Item{
			Name:     dishes[rng.Intn(len(dishes))],
			Quantity: float64(1 + rng.Intn(4)),
		})
	}
	b, _ := json.Marshal(items)
	return b
}
