package kmsg

import "github.com/fluvio-go/fluvio/pkg/kbin"

// Acks mirrors the producer's acks option on the wire: -1 means "all",
// 0 means "none", 1 means "leader".
type Acks int16

const (
	AcksNone   Acks = 0
	AcksLeader Acks = 1
	AcksAll    Acks = -1
)

// ProduceRequestPartition carries one partition's serialized record
// batch.
type ProduceRequestPartition struct {
	Partition int32
	Batch     []byte // an already-serialized kbin.RecordBatch (see kbin.AssembleBatch)
}

// ProduceRequestTopic groups partitions for one topic.
type ProduceRequestTopic struct {
	Topic      string
	Partitions []ProduceRequestPartition
}

// ProduceRequest is a batch of record batches for possibly-multiple
// (topic, partition)s, issued to an SPU.
type ProduceRequest struct {
	reqHeader
	Acks          Acks
	TimeoutMillis int32
	Topics        []ProduceRequestTopic
}

func (*ProduceRequest) Key() int16 { return KeyProduce }

func (r *ProduceRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int16(int16(r.Acks))
	w.Int32(r.TimeoutMillis)
	w.Int32(int32(len(r.Topics)))
	for _, t := range r.Topics {
		name := t.Topic
		w.String(&name)
		w.Int32(int32(len(t.Partitions)))
		for _, p := range t.Partitions {
			w.Int32(p.Partition)
			w.PrefixedBytes(p.Batch)
		}
	}
	return w.Bytes()
}

func (*ProduceRequest) ResponseKind() Response { return &ProduceResponse{} }

// ProduceResponsePartition reports the result for one partition: the
// base_offset a successful append begins at, from which per-record
// offsets are computed as base_offset + i.
type ProduceResponsePartition struct {
	Partition  int32
	ErrorCode  string
	BaseOffset int64
}

// ProduceResponseTopic groups partition results for one topic.
type ProduceResponseTopic struct {
	Topic      string
	Partitions []ProduceResponsePartition
}

// ProduceResponse is the SPU's reply to a ProduceRequest.
type ProduceResponse struct {
	reqHeader
	Topics []ProduceResponseTopic
}

func (*ProduceResponse) Key() int16 { return KeyProduce }

func (resp *ProduceResponse) ReadFrom(buf []byte) error {
	r := kbin.NewReader(buf)
	n := r.Int32()
	resp.Topics = make([]ProduceResponseTopic, 0, n)
	for i := int32(0); i < n; i++ {
		var t ProduceResponseTopic
		if name := r.String(); name != nil {
			t.Topic = *name
		}
		pn := r.Int32()
		t.Partitions = make([]ProduceResponsePartition, 0, pn)
		for j := int32(0); j < pn; j++ {
			var p ProduceResponsePartition
			p.Partition = r.Int32()
			if ec := r.String(); ec != nil {
				p.ErrorCode = *ec
			}
			p.BaseOffset = r.Int64()
			t.Partitions = append(t.Partitions, p)
		}
		resp.Topics = append(resp.Topics, t)
	}
	return r.Err()
}
