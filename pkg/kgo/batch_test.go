package kgo

import (
	"testing"
	"time"

	"github.com/fluvio-go/fluvio/pkg/kbin"
)

func TestPartitionBatchAppendTriggersOnBatchSize(t *testing.T) {
	b := newPartitionBatch("t", 0, func(string, int32) {})
	for i := 0; i < 2; i++ {
		_, tooLarge, sizeTriggered := b.append(ProduceRecord{Value: []byte("v")}, func(int64, error) {}, 1<<20, 0, 3)
		if tooLarge {
			t.Fatal("unexpected tooLarge")
		}
		if sizeTriggered {
			t.Fatalf("sizeTriggered fired early on append %d", i)
		}
	}
	_, _, sizeTriggered := b.append(ProduceRecord{Value: []byte("v")}, func(int64, error) {}, 1<<20, 0, 3)
	if !sizeTriggered {
		t.Fatal("expected sizeTriggered on the third append with batchSizeTrigger=3")
	}
}

func TestPartitionBatchRecordTooLarge(t *testing.T) {
	b := newPartitionBatch("t", 0, func(string, int32) {})
	_, tooLarge, _ := b.append(ProduceRecord{Value: make([]byte, 100)}, func(int64, error) {}, 10, 0, 1000)
	if !tooLarge {
		t.Fatal("expected tooLarge for a record bigger than maxRequestSize")
	}
}

func TestPartitionBatchFlushBeforeOnOverflow(t *testing.T) {
	b := newPartitionBatch("t", 0, func(string, int32) {})
	// First record fits comfortably.
	shouldFlush, tooLarge, _ := b.append(ProduceRecord{Value: make([]byte, 40)}, func(int64, error) {}, 100, 0, 1000)
	if shouldFlush || tooLarge {
		t.Fatalf("unexpected flush=%v tooLarge=%v on first append", shouldFlush, tooLarge)
	}
	// Second record alone fits under maxRequestSize but not alongside the first.
	shouldFlush, tooLarge, _ = b.append(ProduceRecord{Value: make([]byte, 40)}, func(int64, error) {}, 100, 0, 1000)
	if tooLarge {
		t.Fatal("unexpected tooLarge")
	}
	if !shouldFlush {
		t.Fatal("expected shouldFlushBefore when the batch would overflow maxRequestSize")
	}
}

func TestPartitionBatchDrainResetsState(t *testing.T) {
	b := newPartitionBatch("t", 0, func(string, int32) {})
	b.append(ProduceRecord{Value: []byte("v")}, func(int64, error) {}, 1<<20, 0, 1000)
	if b.isEmpty() {
		t.Fatal("batch should not be empty after an append")
	}
	drained := b.drain()
	if len(drained) != 1 {
		t.Fatalf("drain returned %d records, want 1", len(drained))
	}
	if !b.isEmpty() {
		t.Fatal("batch should be empty after drain")
	}
}

func TestPartitionBatchStartsLingerTimerOnlyOnce(t *testing.T) {
	fired := make(chan struct{}, 10)
	b := newPartitionBatch("t", 0, func(string, int32) { fired <- struct{}{} })
	b.append(ProduceRecord{Value: []byte("v")}, func(int64, error) {}, 1<<20, 10*time.Millisecond, 1000)
	b.append(ProduceRecord{Value: []byte("v")}, func(int64, error) {}, 1<<20, 10*time.Millisecond, 1000)

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("linger timer never fired")
	}
	select {
	case <-fired:
		t.Fatal("linger timer fired twice for one batch")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSerializeBatchRoundTripsThroughKbin(t *testing.T) {
	recs := []pendingRecord{
		{rec: ProduceRecord{Value: []byte("hello"), Key: []byte("k")}},
		{rec: ProduceRecord{Value: []byte("world")}},
	}
	wire, err := serializeBatch(recs, CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	rb, _, err := kbin.ParseRecordBatch(wire)
	if err != nil {
		t.Fatal(err)
	}
	if len(rb.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(rb.Records))
	}
	if string(rb.Records[0].Value) != "hello" || string(rb.Records[1].Value) != "world" {
		t.Errorf("unexpected record values: %q %q", rb.Records[0].Value, rb.Records[1].Value)
	}
}

func TestSerializeBatchEmptyIsError(t *testing.T) {
	if _, err := serializeBatch(nil, CompressionNone); err == nil {
		t.Fatal("expected an error serializing an empty batch")
	}
}

func TestSerializeBatchWithCompressionRoundTrips(t *testing.T) {
	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i % 7)
	}
	recs := []pendingRecord{{rec: ProduceRecord{Value: big}}}

	for _, codec := range []Compression{CompressionGzip, CompressionSnappy, CompressionLz4, CompressionZstd} {
		wire, err := serializeBatch(recs, codec)
		if err != nil {
			t.Fatalf("codec %v: %v", codec, err)
		}
		rb, payload, _, err := kbin.ParseRecordBatchHeader(wire)
		if err != nil {
			t.Fatalf("codec %v: parse header: %v", codec, err)
		}
		got := Compression(int16(rb.Attributes) & kbin.AttrCompressionMask)
		decompressed, err := decompress(got, payload)
		if err != nil {
			t.Fatalf("codec %v: decompress: %v", codec, err)
		}
		records, err := kbin.DecodeRecords(decompressed, rb.RecordCount())
		if err != nil {
			t.Fatalf("codec %v: decode records: %v", codec, err)
		}
		if len(records) != 1 || string(records[0].Value) != string(big) {
			t.Fatalf("codec %v: round-tripped value did not match", codec)
		}
	}
}
