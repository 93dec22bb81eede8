package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"

	"oms/internal/model"
)

func TestEventKey(t *testing.T) {
	up := Event{Kind: KindUpsert, Order: &model.OrderRecord{ID: "o1"}}
	if up.Key() != "o1" {
		t.Fatalf("upsert key: %q", up.Key())
	}
	st := Event{Kind: KindStatus, OrderID: "o2", Status: "delivered"}
	if st.Key() != "o2" {
		t.Fatalf("status key: %q", st.Key())
	}
}

func TestFileWriter_AppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir, "journal.jsonl")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	events := []Event{
		{Kind: KindUpsert, Seq: 1, Order: &model.OrderRecord{ID: "o1", SellerID: "sellerA", Status: "pending"}},
		{Kind: KindStatus, Seq: 2, OrderID: "o1", Status: "delivered"},
	}
	for _, e := range events {
		if err := w.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "journal.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var got []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 lines, got %d", len(got))
	}
	if got[0].Kind != KindUpsert || got[0].Order == nil || got[0].Order.ID != "o1" {
		t.Fatalf("first line: %+v", got[0])
	}
	if got[1].Kind != KindStatus || got[1].OrderID != "o1" || got[1].Status != "delivered" {
		t.Fatalf("second line: %+v", got[1])
	}
}

type fakeKafkaWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaWriter_Append(t *testing.T) {
	fw := &fakeKafkaWriter{}
	w := NewKafkaWriterWith(fw)

	e := Event{Kind: KindUpsert, Seq: 3, Order: &model.OrderRecord{ID: "o9", SellerID: "sellerA"}}
	if err := w.Append(e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(fw.msgs))
	}
	if string(fw.msgs[0].Key) != "o9" {
		t.Fatalf("message key should be the order id: %q", fw.msgs[0].Key)
	}
	var got Event
	if err := json.Unmarshal(fw.msgs[0].Value, &got); err != nil {
		t.Fatalf("value should be the event JSON: %v", err)
	}
	if got.Seq != 3 || got.Order.ID != "o9" {
		t.Fatalf("payload: %+v", got)
	}
}

func TestKafkaWriter_AppendError(t *testing.T) {
	w := NewKafkaWriterWith(&fakeKafkaWriter{err: errors.New("broker down")})
	if err := w.Append(Event{Kind: KindStatus, OrderID: "o1"}); err == nil {
		t.Fatalf("writer failure should surface")
	}
}

func TestMultiWriter_StopsOnFirstError(t *testing.T) {
	dir := t.TempDir()
	fileW, err := NewFileWriter(dir, "journal.jsonl")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	bad := NewKafkaWriterWith(&fakeKafkaWriter{err: errors.New("broker down")})

	mw := NewMultiWriter(fileW, bad)
	if err := mw.Append(Event{Kind: KindStatus, OrderID: "o1", Status: "delivered"}); err == nil {
		t.Fatalf("multi writer should propagate the failure")
	}
	// The file write before the failure still landed.
	data, err := os.ReadFile(filepath.Join(dir, "journal.jsonl"))
	if err != nil || len(data) == 0 {
		t.Fatalf("file sink should have the event: %v", err)
	}
}
