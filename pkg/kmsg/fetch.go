package kmsg

import "github.com/fluvio-go/fluvio/pkg/kbin"

// FetchRequest is a bounded single-shot fetch against one partition.
type FetchRequest struct {
	reqHeader
	Topic         string
	Partition     int32
	FetchOffset   int64
	MaxBytes      int32
	TimeoutMillis int32
}

func (*FetchRequest) Key() int16 { return KeyFetch }

func (r *FetchRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(&r.Topic)
	w.Int32(r.Partition)
	w.Int64(r.FetchOffset)
	w.Int32(r.MaxBytes)
	w.Int32(r.TimeoutMillis)
	return w.Bytes()
}

func (*FetchRequest) ResponseKind() Response { return &FetchResponse{} }

// FetchResponse carries zero or more serialized record batches plus the
// partition's high watermark and an error code, if any.
type FetchResponse struct {
	reqHeader
	ErrorCode     string
	HighWatermark int64
	Batches       [][]byte // each a serialized kbin.RecordBatch
}

func (*FetchResponse) Key() int16 { return KeyFetch }

func (resp *FetchResponse) ReadFrom(buf []byte) error {
	r := kbin.NewReader(buf)
	if ec := r.String(); ec != nil {
		resp.ErrorCode = *ec
	}
	resp.HighWatermark = r.Int64()
	n := r.Int32()
	resp.Batches = make([][]byte, 0, n)
	for i := int32(0); i < n; i++ {
		resp.Batches = append(resp.Batches, r.Bytes())
	}
	return r.Err()
}

// StreamFetchRequest opens or continues a long-lived Stream-Fetch against
// one partition. SessionID is empty to start a new stream; subsequent
// continuations echo the SessionID the first response returned.
type StreamFetchRequest struct {
	reqHeader
	Topic       string
	Partition   int32
	FetchOffset int64
	MaxBytes    int32
	SessionID   string
}

func (*StreamFetchRequest) Key() int16 { return KeyStreamFetch }

func (r *StreamFetchRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(&r.Topic)
	w.Int32(r.Partition)
	w.Int64(r.FetchOffset)
	w.Int32(r.MaxBytes)
	w.String(&r.SessionID)
	return w.Bytes()
}

func (*StreamFetchRequest) ResponseKind() Response { return &StreamFetchResponse{} }

// StreamFetchResponse is one continuation's worth of batches from a
// Stream-Fetch. The consumer issues a fresh StreamFetchRequest using
// NextOffset after consuming Batches.
type StreamFetchResponse struct {
	reqHeader
	ErrorCode     string
	SessionID     string
	HighWatermark int64
	NextOffset    int64
	LeaderChanged bool
	Batches       [][]byte
}

func (*StreamFetchResponse) Key() int16 { return KeyStreamFetch }

func (resp *StreamFetchResponse) ReadFrom(buf []byte) error {
	r := kbin.NewReader(buf)
	if ec := r.String(); ec != nil {
		resp.ErrorCode = *ec
	}
	if sid := r.String(); sid != nil {
		resp.SessionID = *sid
	}
	resp.HighWatermark = r.Int64()
	resp.NextOffset = r.Int64()
	resp.LeaderChanged = r.Bool()
	n := r.Int32()
	resp.Batches = make([][]byte, 0, n)
	for i := int32(0); i < n; i++ {
		resp.Batches = append(resp.Batches, r.Bytes())
	}
	return r.Err()
}
