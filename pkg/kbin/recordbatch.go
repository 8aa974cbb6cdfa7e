package kbin

import (
	"hash/crc32"

	"github.com/fluvio-go/fluvio/pkg/ferr"
)

// crc32c is the Castagnoli table used for record-batch checksums, per the
// wire format (CRC32C over everything after the crc field).
var crc32c = crc32.MakeTable(crc32.Castagnoli)

const recordBatchMagic = 2

// Attribute bits within a RecordBatch's i16 attributes field.
const (
	AttrCompressionMask = 0x7 // bits 0-2
	AttrTimestampType   = 1 << 3
	AttrIsTransactional = 1 << 4
	AttrIsControl       = 1 << 5
)

// Header is a single (name, value) pair. Duplicates are permitted and
// order is preserved; this is not a unique-key mapping.
type Header struct {
	Name  string
	Value []byte // nil means absent, distinct from an empty non-nil slice
}

// BatchRecord is a single record inside a RecordBatch, storing the deltas
// the wire format uses rather than absolute offset/timestamp.
type BatchRecord struct {
	Attributes      int8
	TimestampDelta  int64
	OffsetDelta     int32
	Key             []byte // nil means absent
	Value           []byte // may be empty; nil only when the wire marks it absent (length -1)
	Headers         []Header
	HeadersAbsent   bool // true if the header list itself was absent (-1), vs present-but-empty
}

// RecordBatch is the nested record-batch wire entity shared by Produce and
// Fetch payloads.
type RecordBatch struct {
	BaseOffset         int64
	PartitionLeaderEpoch int32
	Attributes         int16
	LastOffsetDelta    int32
	BaseTimestamp      int64
	MaxTimestamp       int64
	ProducerID         int64
	ProducerEpoch      int16
	BaseSequence       int32
	Records            []BatchRecord

	// recordCount is set by ParseRecordBatchHeader from the wire's
	// record_count field before Records is populated by DecodeRecords.
	recordCount int32
}

// RecordCount returns the batch's record count as read from the wire
// header, valid even before DecodeRecords has populated Records.
func (rb *RecordBatch) RecordCount() int32 {
	if rb.recordCount != 0 {
		return rb.recordCount
	}
	return int32(len(rb.Records))
}

// AppendTo serializes rb and appends it to buf, computing the length and
// CRC fields as it goes. The records portion is encoded with EncodeRecords
// so compression can be applied to just that portion; see AssembleBatch.
func (rb *RecordBatch) AppendTo(buf []byte) []byte {
	return append(buf, AssembleBatch(rb, EncodeRecords(rb.Records))...)
}

// EncodeRecords serializes records in wire form with no batch header, so
// the result can be compressed independently of the header, per the
// attribute bits that flag which codec (if any) was used.
func EncodeRecords(records []BatchRecord) []byte {
	w := NewWriter(nil)
	for i := range records {
		appendRecord(w, &records[i])
	}
	return w.Bytes()
}

// AssembleBatch writes rb's header (base offset, epoch, magic, attributes,
// timestamps, producer fields, record count) followed verbatim by
// recordsPayload, then patches in batch_length and the CRC32C over
// everything from the attributes field onward. recordsPayload is either
// the direct output of EncodeRecords or a compressed form of it, matching
// whichever codec rb.Attributes' low 3 bits name.
func AssembleBatch(rb *RecordBatch, recordsPayload []byte) []byte {
	w := NewWriter(nil)
	w.Int64(rb.BaseOffset)

	lenOff := w.Len()
	w.Int32(0) // batch_length placeholder, patched below

	w.Int32(rb.PartitionLeaderEpoch)
	w.Int8(recordBatchMagic)

	crcOff := w.Len()
	w.Uint32(0) // crc placeholder, patched below

	bodyStart := w.Len()
	w.Int16(rb.Attributes)
	w.Int32(rb.LastOffsetDelta)
	w.Int64(rb.BaseTimestamp)
	w.Int64(rb.MaxTimestamp)
	w.Int64(rb.ProducerID)
	w.Int16(rb.ProducerEpoch)
	w.Int32(rb.BaseSequence)
	w.Int32(int32(len(rb.Records)))
	w.buf = append(w.buf, recordsPayload...)

	out := w.Bytes()
	crc := crc32.Checksum(out[bodyStart:], crc32c)
	putInt32(out[crcOff:], int32(crc))
	putInt32(out[lenOff:], int32(len(out)-lenOff-4))
	return out
}

func putInt32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u >> 24)
	b[1] = byte(u >> 16)
	b[2] = byte(u >> 8)
	b[3] = byte(u)
}

func appendRecord(w *Writer, rec *BatchRecord) {
	inner := NewWriter(nil)
	inner.Int8(rec.Attributes)
	inner.Varint(int32(rec.TimestampDelta))
	inner.Varint(rec.OffsetDelta)
	appendVarintBytes(inner, rec.Key)
	inner.Varint(int32(len(rec.Value)))
	inner.buf = append(inner.buf, rec.Value...)
	if rec.HeadersAbsent {
		inner.Varint(-1)
	} else {
		inner.Varint(int32(len(rec.Headers)))
		for _, h := range rec.Headers {
			appendVarintString(inner, h.Name)
			appendVarintBytes(inner, h.Value)
		}
	}
	body := inner.Bytes()
	w.Varint(int32(len(body)))
	w.buf = append(w.buf, body...)
}

func appendVarintBytes(w *Writer, b []byte) {
	if b == nil {
		w.Varint(-1)
		return
	}
	w.Varint(int32(len(b)))
	w.buf = append(w.buf, b...)
}

func appendVarintString(w *Writer, s string) {
	w.Varint(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// ParseRecordBatchHeader decodes a single RecordBatch's header from buf,
// verifying its CRC, and returns the batch (with Records left empty), the
// still-possibly-compressed records payload, and the number of bytes
// consumed. Callers decompress recordsPayload per rb.Attributes' low 3
// bits (if needed) and pass the result to DecodeRecords. A CRC mismatch
// is reported as CodeCrcMismatch so callers can discard just this batch
// and advance past it, per the consume error-propagation rules.
func ParseRecordBatchHeader(buf []byte) (rb *RecordBatch, recordsPayload []byte, total int, err error) {
	r := NewReader(buf)
	rb = &RecordBatch{}
	rb.BaseOffset = r.Int64()
	batchLength := r.Int32()
	if r.Err() != nil {
		return nil, nil, 0, r.Err()
	}
	total = 12 + int(batchLength) // base_offset(8) + batch_length(4) + batchLength bytes
	if len(buf) < total {
		return nil, nil, 0, ferr.New(ferr.CodeTruncatedFrame, "record batch shorter than declared batch_length")
	}

	rb.PartitionLeaderEpoch = r.Int32()
	magic := r.Int8()
	if r.Err() != nil {
		return nil, nil, 0, r.Err()
	}
	if magic != recordBatchMagic {
		return nil, nil, 0, ferr.Errorf(ferr.CodeMalformed, "unsupported record batch magic %d", magic)
	}
	wantCRC := r.Uint32()
	bodyStart := r.off
	bodyEnd := total
	if r.Err() != nil {
		return nil, nil, 0, r.Err()
	}
	gotCRC := crc32.Checksum(buf[bodyStart:bodyEnd], crc32c)
	if gotCRC != wantCRC {
		return nil, nil, total, ferr.New(ferr.CodeCrcMismatch, "record batch CRC mismatch")
	}

	rb.Attributes = r.Int16()
	rb.LastOffsetDelta = r.Int32()
	rb.BaseTimestamp = r.Int64()
	rb.MaxTimestamp = r.Int64()
	rb.ProducerID = r.Int64()
	rb.ProducerEpoch = r.Int16()
	rb.BaseSequence = r.Int32()
	count := r.Int32()
	if r.Err() != nil {
		return nil, nil, 0, r.Err()
	}
	rb.recordCount = count
	payload := append([]byte(nil), buf[r.off:bodyEnd]...)
	return rb, payload, total, nil
}

// DecodeRecords parses count records (as recorded in the batch header) out
// of payload, which must already be decompressed.
func DecodeRecords(payload []byte, count int32) ([]BatchRecord, error) {
	r := NewReader(payload)
	records := make([]BatchRecord, 0, count)
	for i := int32(0); i < count; i++ {
		rec, err := parseRecord(r)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// ParseRecordBatch decodes a single uncompressed RecordBatch from buf. It
// is a convenience wrapper over ParseRecordBatchHeader + DecodeRecords for
// callers that know compression is not in use (e.g. tests); consumers in
// pkg/kgo use the two-step form to support every compression codec.
func ParseRecordBatch(buf []byte) (*RecordBatch, int, error) {
	rb, payload, total, err := ParseRecordBatchHeader(buf)
	if err != nil {
		return nil, total, err
	}
	records, err := DecodeRecords(payload, rb.recordCount)
	if err != nil {
		return nil, total, err
	}
	rb.Records = records
	return rb, total, nil
}

func parseRecord(r *Reader) (*BatchRecord, error) {
	length := r.Varint()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if length < 0 {
		return nil, ferr.New(ferr.CodeMalformed, "negative record length")
	}
	start := r.off
	end := start + int(length)
	if !r.need(int(length)) {
		return nil, r.Err()
	}

	rec := &BatchRecord{}
	rec.Attributes = r.Int8()
	rec.TimestampDelta = int64(r.Varint())
	rec.OffsetDelta = r.Varint()

	keyLen := r.Varint()
	if keyLen < -1 {
		return nil, ferr.New(ferr.CodeMalformed, "negative key length")
	}
	if keyLen == -1 {
		rec.Key = nil
	} else {
		rec.Key = append([]byte(nil), r.Span(int(keyLen))...)
	}

	valLen := r.Varint()
	if valLen < -1 {
		return nil, ferr.New(ferr.CodeMalformed, "negative value length")
	}
	if valLen == -1 {
		rec.Value = nil
	} else {
		rec.Value = append([]byte(nil), r.Span(int(valLen))...)
		if rec.Value == nil {
			rec.Value = []byte{}
		}
	}

	headerCount := r.Varint()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if headerCount == -1 {
		rec.HeadersAbsent = true
	} else {
		if headerCount < -1 {
			return nil, ferr.New(ferr.CodeMalformed, "negative header count")
		}
		rec.Headers = make([]Header, 0, headerCount)
		for i := int32(0); i < headerCount; i++ {
			h, err := parseHeader(r)
			if err != nil {
				return nil, err
			}
			rec.Headers = append(rec.Headers, *h)
		}
	}

	if r.Err() != nil {
		return nil, r.Err()
	}
	if r.off != end {
		r.off = end // tolerate trailing unknown fields within the declared length
	}
	return rec, nil
}

func parseHeader(r *Reader) (*Header, error) {
	nameLen := r.Varint()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if nameLen < 0 {
		return nil, ferr.New(ferr.CodeMalformed, "negative header name length")
	}
	name := string(r.Span(int(nameLen)))
	valLen := r.Varint()
	if r.Err() != nil {
		return nil, r.Err()
	}
	var value []byte
	if valLen == -1 {
		value = nil
	} else if valLen < -1 {
		return nil, ferr.New(ferr.CodeMalformed, "negative header value length")
	} else {
		value = append([]byte(nil), r.Span(int(valLen))...)
		if value == nil {
			value = []byte{}
		}
	}
	return &Header{Name: name, Value: value}, nil
}
