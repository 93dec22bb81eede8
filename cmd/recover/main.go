package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"oms/internal/ledger"
	"oms/internal/manifest"
	"oms/internal/metrics"
	"oms/internal/restore"
	"oms/internal/stats"

	"github.com/segmentio/kafka-go"
)

func main() {
	var (
		bootstrap       string
		manifestSource  string
		journalSource   string
		topicSnapshots  string
		topicJournal    string
		snapshotDir     string
		journalPath     string
		httpAddr        string
		pollIntervalSec int
	)
	flag.StringVar(&bootstrap, "bootstrap", "localhost:19092", "kafka bootstrap")
	flag.StringVar(&manifestSource, "manifest-source", "file", "file|kafka")
	flag.StringVar(&journalSource, "journal-source", "file", "file|kafka")
	flag.StringVar(&topicSnapshots, "topic-snapshots", "oms.snapshots", "manifest topic")
	flag.StringVar(&topicJournal, "topic-journal", "oms.journal", "journal topic")
	flag.StringVar(&snapshotDir, "snapshot-dir", "./snapshots", "snapshot dir for file mode")
	flag.StringVar(&journalPath, "journal-path", filepath.Join("journal", "oms.jsonl"), "journal file for file mode")
	flag.StringVar(&httpAddr, "http", ":9090", "http listen for /metrics")
	flag.IntVar(&pollIntervalSec, "poll", 10, "poll interval seconds for manifest")
	flag.Parse()

	mreg := metrics.NewRegistry()
	go func() {
		http.Handle("/metrics", mreg.Handler())
		_ = http.ListenAndServe(httpAddr, nil)
	}()

	var mReader manifest.Reader
	if manifestSource == "kafka" {
		mReader = restore.NewKafkaReader([]string{bootstrap}, topicSnapshots, "oms-manifest-latest")
	} else {
		mReader = restore.NewFilesystemReader(snapshotDir)
	}

	ticker := time.NewTicker(time.Duration(pollIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		t1 := time.Now()
		// Fresh in-memory ledger each cycle: recovery must always be possible
		// from snapshot + journal alone.
		st := ledger.NewInMemoryStore()
		r := restore.NewRestorer(st, mReader, snapshotDir)
		m, err := mReader.ReadLatest()
		if err != nil {
			log.Printf("read manifest: %v", err)
			<-ticker.C
			continue
		}
		if err := r.RestoreFromSnapshot(m.SnapshotID); err != nil {
			log.Printf("restore snapshot: %v", err)
			<-ticker.C
			continue
		}

		var res restore.RestoreResult
		if journalSource == "kafka" {
			res = r.ReplayJournalKafka([]string{bootstrap}, topicJournal, m.LastJournalOffset)
		} else {
			res = r.ReplayJournal(journalPath, m.LastJournalOffset)
		}
		if res.Error != nil {
			log.Printf("replay: %v", res.Error)
			<-ticker.C
			continue
		}

		mreg.ReplayApplied.Add(float64(res.Applied))
		mreg.ReplaySkipped.Add(float64(res.Skipped))
		mreg.TTRSec.Set(time.Since(t1).Seconds())
		if journalSource == "kafka" {
			if head := headOffset(topicJournal, bootstrap); head >= 0 {
				applied := m.LastJournalOffset + int64(res.Applied) + int64(res.Skipped)
				mreg.JournalLag.Set(float64(head + 1 - applied))
			}
		}
		mreg.LastManifestAgeSec.Set(time.Since(time.Unix(m.CreatedAtEpochSecond, 0)).Seconds())

		// Recompute the dashboards from the recovered ledger to prove the
		// derived state is reproducible.
		records, err := ledger.All(st)
		if err != nil {
			log.Printf("read recovered ledger: %v", err)
			<-ticker.C
			continue
		}
		sum := stats.Recompute(records)
		cb, _ := json.Marshal(sum.Customer)
		log.Printf("recovery cycle: applied=%d skipped=%d sellers=%d ttr=%.3fs customer=%s",
			res.Applied, res.Skipped, len(sum.Sellers), time.Since(t1).Seconds(), string(cb))

		<-ticker.C
	}
}

// headOffset returns the last offset of partition 0 for a topic. Used when
// diagnosing journal lag against a broker.
func headOffset(topic string, bootstrap string) int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := kafka.DialLeader(ctx, "tcp", bootstrap, topic, 0)
	if err != nil {
		return -1
	}
	defer conn.Close()
	off, err := conn.ReadLastOffset()
	if err != nil {
		return -1
	}
	return off - 1
}
