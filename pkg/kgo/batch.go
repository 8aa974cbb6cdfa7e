package kgo

import (
	"sync"
	"time"

	"github.com/fluvio-go/fluvio/pkg/ferr"
	"github.com/fluvio-go/fluvio/pkg/kbin"
)

// pendingRecord is one record accumulated in a partitionBatch, paired
// with the callback that resolves its eventual offset or error.
type pendingRecord struct {
	rec     ProduceRecord
	promise func(offset int64, err error)
}

// partitionBatch accumulates records for a single (topic, partition) pair.
// It is single-writer per the concurrency model: a fine-grained per-batch
// mutex guards appends, matching "a fine-grained lock (or lock-free
// single-producer queue) per partition suffices".
type partitionBatch struct {
	mu sync.Mutex

	topic     string
	partition int32

	pending    []pendingRecord
	sizeBytes  int
	firstAdded time.Time

	lingerTimer *time.Timer
	onTrigger   func(topic string, partition int32) // fires a flush for this batch
}

func newPartitionBatch(topic string, partition int32, onTrigger func(string, int32)) *partitionBatch {
	return &partitionBatch{
		topic:     topic,
		partition: partition,
		onTrigger: onTrigger,
	}
}

// estimatedRecordSize approximates the serialized size of a record,
// including the varint overhead, for the max_request_size trigger. It
// need not be exact: the true check happens again at serialization time.
func estimatedRecordSize(r ProduceRecord) int {
	size := 1 /* attributes */ + 10 /* timestamp delta varint, worst case */ + 10 /* offset delta varint */
	size += 5 + len(r.Key)
	size += 5 + len(r.Value)
	size += 5
	for _, h := range r.Headers {
		size += 5 + len(h.Key) + 5 + len(h.Value)
	}
	size += 5 // record length varint itself
	return size
}

// append adds rec to the batch. It returns:
//   - shouldFlushBefore: the batch must be flushed before rec is appended
//     because rec alone would overflow maxRequestSize (rec is NOT added
//     in this case; the caller flushes and retries the append).
//   - tooLarge: rec by itself exceeds maxRequestSize; it can never be
//     appended and RecordTooLarge should be returned to the caller.
//   - sizeTriggered: rec was appended and the batch now holds at least
//     batchSizeTrigger records, so it should be flushed.
func (b *partitionBatch) append(rec ProduceRecord, promise func(int64, error), maxRequestSize int, linger time.Duration, batchSizeTrigger int) (shouldFlushBefore, tooLarge, sizeTriggered bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	recSize := estimatedRecordSize(rec)
	if recSize > maxRequestSize {
		return false, true, false
	}
	if b.sizeBytes+recSize > maxRequestSize && len(b.pending) > 0 {
		return true, false, false
	}

	if len(b.pending) == 0 {
		b.firstAdded = time.Now()
		if linger > 0 {
			b.lingerTimer = time.AfterFunc(linger, func() {
				b.onTrigger(b.topic, b.partition)
			})
		}
	}
	b.pending = append(b.pending, pendingRecord{rec: rec, promise: promise})
	b.sizeBytes += recSize

	return false, false, len(b.pending) >= batchSizeTrigger
}

// drain removes and returns all pending records, resetting the batch to
// empty. It stops any running linger timer.
func (b *partitionBatch) drain() []pendingRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lingerTimer != nil {
		b.lingerTimer.Stop()
		b.lingerTimer = nil
	}
	out := b.pending
	b.pending = nil
	b.sizeBytes = 0
	return out
}

func (b *partitionBatch) isEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) == 0
}

// serializeBatch builds the wire RecordBatch for recs, all sharing a single
// base timestamp, per the data model ("records: ordered sequence of
// Record sharing the batch timestamp base").
func serializeBatch(recs []pendingRecord, compression Compression) ([]byte, error) {
	if len(recs) == 0 {
		return nil, ferr.New(ferr.CodeInvalidRecord, "cannot serialize an empty batch")
	}
	base := recs[0].rec.Timestamp
	if base.IsZero() {
		base = time.Now()
	}
	baseMillis := base.UnixMilli()

	rb := &kbin.RecordBatch{
		BaseOffset:      0,
		BaseTimestamp:   baseMillis,
		MaxTimestamp:    baseMillis,
		ProducerID:      -1,
		ProducerEpoch:   -1,
		BaseSequence:    -1,
		LastOffsetDelta: int32(len(recs) - 1),
	}

	for i, pr := range recs {
		ts := pr.rec.Timestamp
		if ts.IsZero() {
			ts = base
		}
		delta := ts.UnixMilli() - baseMillis
		if baseMillis+delta > rb.MaxTimestamp {
			rb.MaxTimestamp = baseMillis + delta
		}
		br := kbin.BatchRecord{
			TimestampDelta: delta,
			OffsetDelta:    int32(i),
			Key:            pr.rec.Key,
			Value:          pr.rec.Value,
		}
		if pr.rec.Headers == nil {
			br.HeadersAbsent = true
		} else {
			br.Headers = make([]kbin.Header, len(pr.rec.Headers))
			for j, h := range pr.rec.Headers {
				br.Headers[j] = kbin.Header{Name: h.Key, Value: h.Value}
			}
		}
		rb.Records = append(rb.Records, br)
	}
	rb.Attributes = int16(compression) & kbin.AttrCompressionMask

	recordsPayload := kbin.EncodeRecords(rb.Records)
	if compression == CompressionNone {
		return kbin.AssembleBatch(rb, recordsPayload), nil
	}

	compressed, err := compress(compression, recordsPayload)
	if err != nil {
		return nil, err
	}
	// If compression did not help, fall back to the uncompressed form,
	// matching the teacher's own "if a batch compresses poorly... use the
	// uncompressed form" behavior.
	if len(compressed) >= len(recordsPayload) {
		rb.Attributes &^= kbin.AttrCompressionMask
		return kbin.AssembleBatch(rb, recordsPayload), nil
	}
	return kbin.AssembleBatch(rb, compressed), nil
}
