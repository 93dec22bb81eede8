package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"oms/internal/ingest"
	"oms/internal/journal"
	"oms/internal/ledger"
	"oms/internal/manifest"
	"oms/internal/metrics"
	"oms/internal/model"
	"oms/internal/restore"
	"oms/internal/snapshot"
	"oms/internal/tracker"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Config holds CLI flags for the tracker daemon.
type Config struct {
	GroupID          string
	SnapshotInterval int
	JournalOn        bool
	SnapshotDir      string
	JournalDir       string
	DataDir          string
	StateBackend     string // memory|pebble|badger
	// Kafka sinks
	KafkaBootstrap string
	JournalSink    string // file|kafka|both
	ManifestSink   string // file|kafka|both
	ManifestSource string // file|kafka
	TopicJournal   string
	TopicSnapshots string
	// Kafka input for order events
	InputSource string // sample|kafka
	TopicOrders string
	HTTPAddr    string
}

func main() {
	cfg := readFlags()
	if err := run(cfg); err != nil {
		log.Fatalf("trackerd failed: %v", err)
	}
}

func readFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.GroupID, "group-id", "trackerd", "consumer group id")
	flag.IntVar(&cfg.SnapshotInterval, "snapshot-interval", 60, "snapshot interval seconds")
	flag.BoolVar(&cfg.JournalOn, "journal", true, "enable order-event journal")
	flag.StringVar(&cfg.SnapshotDir, "snapshot-dir", "./snapshots", "snapshot directory")
	flag.StringVar(&cfg.JournalDir, "journal-dir", "./journal", "journal directory for file sink")
	flag.StringVar(&cfg.DataDir, "data-dir", "./data/trackerd", "data directory for pebble/badger")
	flag.StringVar(&cfg.StateBackend, "state-backend", "memory", "ledger backend: memory|pebble|badger")
	flag.StringVar(&cfg.KafkaBootstrap, "kafka-bootstrap", "", "kafka bootstrap servers, e.g. localhost:9092")
	flag.StringVar(&cfg.JournalSink, "journal-sink", "file", "journal sink: file|kafka|both")
	flag.StringVar(&cfg.ManifestSink, "manifest-sink", "file", "manifest sink: file|kafka|both")
	flag.StringVar(&cfg.ManifestSource, "manifest-source", "file", "manifest source for startup restore: file|kafka")
	flag.StringVar(&cfg.TopicJournal, "topic-journal", "oms.journal", "kafka topic for the journal")
	flag.StringVar(&cfg.TopicSnapshots, "topic-snapshots", "oms.snapshots", "kafka topic for the manifest (compacted)")
	flag.StringVar(&cfg.InputSource, "input-source", "sample", "order events source: sample|kafka")
	flag.StringVar(&cfg.TopicOrders, "topic-orders", "oms.orders", "kafka topic for incoming order events")
	flag.StringVar(&cfg.HTTPAddr, "http", ":8080", "http listen for /metrics and dashboards")
	flag.Parse()
	return cfg
}

func run(cfg Config) error {
	log.Printf("starting trackerd backend=%s snapshot-interval=%ds journal=%v", cfg.StateBackend, cfg.SnapshotInterval, cfg.JournalOn)

	// Init ledger store
	var st ledger.Store
	switch cfg.StateBackend {
	case "pebble":
		ps, err := ledger.NewPebbleStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("init pebble: %w", err)
		}
		defer ps.Close()
		st = ps
	case "badger":
		bs, err := ledger.NewBadgerStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("init badger: %w", err)
		}
		defer bs.Close()
		st = bs
	default:
		st = ledger.NewInMemoryStore()
	}

	// Init snapshotter and manifest (filesystem by default)
	snap := snapshot.NewFilesystemSnapshotter(cfg.SnapshotDir)
	maniFS := manifest.NewFilesystemManifest(cfg.SnapshotDir)
	var mani manifest.Publisher = maniFS
	var maniReader manifest.Reader = maniFS
	if (cfg.ManifestSink == "kafka" || cfg.ManifestSink == "both") && cfg.KafkaBootstrap != "" {
		maniK := manifest.NewKafkaManifest(cfg.KafkaBootstrap, cfg.TopicSnapshots, "oms-manifest-latest")
		if cfg.ManifestSink == "kafka" {
			mani = maniK
		} else {
			mani = manifest.MultiPublisher(maniFS, maniK)
		}
	}
	if cfg.ManifestSource == "kafka" && cfg.KafkaBootstrap != "" {
		maniReader = restore.NewKafkaReader([]string{cfg.KafkaBootstrap}, cfg.TopicSnapshots, "oms-manifest-latest")
	}

	// Init journal writer (file by default; kafka optional)
	var jw journal.Writer
	if cfg.JournalOn {
		if cfg.JournalSink == "file" || cfg.JournalSink == "both" || cfg.JournalSink == "" {
			fw, err := journal.NewFileWriter(cfg.JournalDir, "oms.jsonl")
			if err != nil {
				return fmt.Errorf("init journal file: %w", err)
			}
			jw = fw
		}
		if (cfg.JournalSink == "kafka" || cfg.JournalSink == "both") && cfg.KafkaBootstrap != "" {
			kw := journal.NewKafkaWriter(cfg.KafkaBootstrap, cfg.TopicJournal)
			if jw == nil {
				jw = kw
			} else {
				jw = journal.NewMultiWriter(jw, kw)
			}
		}
	}

	mreg := metrics.NewRegistry()
	trk := tracker.New(st, jw, mreg)

	// Best-effort startup restore: a missing or broken snapshot means we
	// simply start fresh.
	if m, err := maniReader.ReadLatest(); err != nil {
		log.Printf("startup restore: no usable manifest: %v", err)
	} else if prev, err := snap.Read(m.SnapshotID); err != nil {
		log.Printf("startup restore: read snapshot %s: %v", m.SnapshotID, err)
	} else {
		trk.LoadState(prev)
		log.Printf("startup restore: loaded %d orders from snapshot %s", len(prev.Orders), m.SnapshotID)
	}

	// HTTP for health, metrics and the dashboard read contracts
	go func() {
		http.Handle("/metrics", mreg.Handler())
		http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
		})
		http.HandleFunc("/dashboard/customer", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(trk.CustomerMetrics())
		})
		http.HandleFunc("/dashboard/seller", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(trk.SellerMetrics(r.URL.Query().Get("id")))
		})
		_ = http.ListenAndServe(cfg.HTTPAddr, nil)
	}()

	if cfg.InputSource == "kafka" && cfg.KafkaBootstrap != "" {
		return runKafka(cfg, trk, snap, mani, mreg)
	}
	return runSample(cfg, trk, snap, mani, mreg)
}

// runKafka consumes order events until killed, flushing after every message
// and snapshotting on the configured interval.
func runKafka(cfg Config, trk *tracker.Tracker, snap *snapshot.FilesystemSnapshotter, mani manifest.Publisher, mreg *metrics.Registry) error {
	c, err := ck.NewConsumer(&ck.ConfigMap{
		"bootstrap.servers":  cfg.KafkaBootstrap,
		"group.id":           cfg.GroupID,
		"enable.auto.commit": true,
		"isolation.level":    "read_committed",
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	defer c.Close()
	if err := c.SubscribeTopics([]string{cfg.TopicOrders}, nil); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	lastSnapshot := time.Now()
	for {
		msg, err := c.ReadMessage(5 * time.Second)
		if err == nil {
			var ev ingest.Event
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				log.Printf("trackerd: bad event: %v", err)
			} else {
				ingest.Apply(trk, ev)
			}
		}
		trk.Flush()

		if cfg.SnapshotInterval > 0 && time.Since(lastSnapshot) >= time.Duration(cfg.SnapshotInterval)*time.Second {
			if err := writeSnapshot(trk, snap, mani, mreg); err != nil {
				log.Printf("trackerd: snapshot: %v", err)
			}
			lastSnapshot = time.Now()
		}
	}
}

// runSample pushes a built-in batch of events through the tracker, writes one
// snapshot, and prints the dashboards. Useful as a smoke run without Kafka.
func runSample(cfg Config, trk *tracker.Tracker, snap *snapshot.FilesystemSnapshotter, mani manifest.Publisher, mreg *metrics.Registry) error {
	items := func(v ...model.Item) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	sample := []ingest.Event{
		{Kind: ingest.KindOrderCreated, Order: &model.RawOrder{
			ID: "ord-1", RestaurantID: "64a1f0b2c9e77a0012d4aa01", UserID: "u1001",
			Status: "delivered", TotalPrice: 420.0,
			Items: items(model.Item{Name: "Masala Dosa", Quantity: 2}),
		}},
		{Kind: ingest.KindOrderCreated, Order: &model.RawOrder{
			ID: "ord-2", Restaurant: map[string]any{"_id": "64a1f0b2c9e77a0012d4aa01", "name": "Spice Garden"},
			UserID: "u1001", Status: "pending", Total: 180.0,
			Items: items(model.Item{Name: "Masala Dosa", Quantity: 1}),
		}},
		{Kind: ingest.KindOrderCreated, Order: &model.RawOrder{
			ID: "ord-3", RestaurantInfo: map[string]any{"id": "64a1f0b2c9e77a0012d4aa02", "name": "Dosa Corner"},
			UserID: "u1002", Status: "preparing", TotalPrice: 260.0,
			Items: items(model.Item{Name: "Veg Thali", Quantity: 1}, model.Item{Name: "Gulab Jamun", Quantity: 3}),
		}},
		{Kind: ingest.KindOrderStatus, OrderID: "ord-3", Status: "delivered"},
	}
	for _, ev := range sample {
		ingest.Apply(trk, ev)
	}
	trk.Flush()

	if err := writeSnapshot(trk, snap, mani, mreg); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	cb, _ := json.Marshal(trk.CustomerMetrics())
	log.Printf("customer dashboard: %s", string(cb))
	sb, _ := json.Marshal(trk.SellerMetrics("64a1f0b2c9e77a0012d4aa01"))
	log.Printf("seller dashboard: %s", string(sb))

	log.Printf("trackerd sample run completed. Exiting.")
	return nil
}

func writeSnapshot(trk *tracker.Tracker, snap *snapshot.FilesystemSnapshotter, mani manifest.Publisher, mreg *metrics.Registry) error {
	id := time.Now().UTC().Format(time.RFC3339)
	if err := snap.WriteSnapshot(id, trk.ExportState()); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := mani.PublishLatest(id, trk.Seq()); err != nil {
		return fmt.Errorf("publish manifest: %w", err)
	}
	mreg.SnapshotWrites.Inc()
	log.Printf("snapshot and manifest published: %s", id)
	return nil
}
