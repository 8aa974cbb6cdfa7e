package kbin

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecordBatchRoundTrip(t *testing.T) {
	rb := &RecordBatch{
		BaseOffset:      100,
		BaseTimestamp:   1000,
		MaxTimestamp:    1050,
		ProducerID:      -1,
		ProducerEpoch:   -1,
		BaseSequence:    -1,
		LastOffsetDelta: 2,
		Records: []BatchRecord{
			{TimestampDelta: 0, OffsetDelta: 0, Key: []byte("k0"), Value: []byte("v0"), HeadersAbsent: true},
			{TimestampDelta: 20, OffsetDelta: 1, Key: nil, Value: []byte("v1"), Headers: []Header{{Name: "h1", Value: []byte("hv1")}}},
			{TimestampDelta: 50, OffsetDelta: 2, Key: []byte("k2"), Value: []byte{}, HeadersAbsent: true},
		},
	}

	buf := rb.AppendTo(nil)

	got, n, err := ParseRecordBatch(buf)
	if err != nil {
		t.Fatalf("ParseRecordBatch: %v", err)
	}
	if n != len(buf) {
		t.Errorf("consumed %d bytes, want %d", n, len(buf))
	}

	if got.BaseOffset != rb.BaseOffset {
		t.Errorf("BaseOffset = %d, want %d", got.BaseOffset, rb.BaseOffset)
	}
	if got.BaseTimestamp != rb.BaseTimestamp || got.MaxTimestamp != rb.MaxTimestamp {
		t.Errorf("timestamps = (%d, %d), want (%d, %d)", got.BaseTimestamp, got.MaxTimestamp, rb.BaseTimestamp, rb.MaxTimestamp)
	}
	if diff := cmp.Diff(rb.Records, got.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordBatchCRCMismatch(t *testing.T) {
	rb := &RecordBatch{Records: []BatchRecord{{Value: []byte("v"), HeadersAbsent: true}}}
	buf := rb.AppendTo(nil)
	buf[len(buf)-1] ^= 0xFF // corrupt the last byte of the record payload

	_, _, err := ParseRecordBatch(buf)
	if err == nil {
		t.Fatal("expected a CRC mismatch error")
	}
}

func TestEncodeRecordsAssembleBatchSeparately(t *testing.T) {
	records := []BatchRecord{
		{Value: []byte("only"), HeadersAbsent: true},
	}
	payload := EncodeRecords(records)

	rb := &RecordBatch{Records: records}
	buf := AssembleBatch(rb, payload)

	got, _, err := ParseRecordBatch(buf)
	if err != nil {
		t.Fatalf("ParseRecordBatch: %v", err)
	}
	if diff := cmp.Diff(records, got.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRecordBatchHeaderTruncated(t *testing.T) {
	rb := &RecordBatch{Records: []BatchRecord{{Value: []byte("v"), HeadersAbsent: true}}}
	buf := rb.AppendTo(nil)

	_, _, _, err := ParseRecordBatchHeader(buf[:len(buf)-5])
	if err == nil {
		t.Fatal("expected a truncated-frame error")
	}
}
