// Package kgo is the fluvio client core: producer, consumer, cluster
// session, partitioner, and offset resolution built on pkg/kbin and
// pkg/kmsg.
package kgo

import "time"

// Offset sentinels, per the data model.
const (
	OffsetBeginning          int64 = 0
	OffsetEnd                int64 = -1
	OffsetCommitted          int64 = -2
	OffsetEarliestTimestamp  int64 = -3
)

// RecordHeader is a single (name, value) header pair. Headers are an
// ordered sequence, not a unique-key mapping: duplicates are permitted and
// order is preserved end to end.
type RecordHeader struct {
	Key   string
	Value []byte
}

// Record is a record as delivered to a consumer: it carries the
// broker-assigned offset and timestamp that a ProduceRecord lacks.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time

	// Key is nil when absent, distinct from an empty non-nil slice.
	Key []byte
	// Value may be empty; it is nil only when the wire marked it absent
	// (value length -1), which this client's producer never writes.
	Value []byte

	// Headers preserves producer input order; a nil Headers means the
	// header list itself was absent on the wire, distinct from an empty
	// non-nil slice.
	Headers []RecordHeader
}

// ProduceRecord is a record as submitted to the producer: the same shape
// as Record minus the fields only the broker can assign (Offset,
// broker-observed Timestamp).
type ProduceRecord struct {
	Topic string

	// Key is nil when absent, distinct from an empty non-nil slice; this
	// matters for key-based partitioning (absent/empty key routes to the
	// round-robin strategy).
	Key   []byte
	Value []byte

	Headers []RecordHeader

	// Timestamp is the client-assigned create-time; a zero value takes
	// the batch's base timestamp when the batch is serialized (the first
	// record's timestamp, or the serialization time if that is zero too).
	Timestamp time.Time
}
