package kmsg

import "github.com/fluvio-go/fluvio/pkg/kbin"

// MetadataRequest asks the Stream Controller for topic/partition/leader
// information. A nil Topics means "all topics".
type MetadataRequest struct {
	reqHeader
	Topics []string
}

func (*MetadataRequest) Key() int16 { return KeyMetadata }

func (r *MetadataRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	if r.Topics == nil {
		w.Int32(-1)
	} else {
		w.Int32(int32(len(r.Topics)))
		for _, t := range r.Topics {
			w.String(&t)
		}
	}
	return w.Bytes()
}

func (*MetadataRequest) ResponseKind() Response { return &MetadataResponse{} }

// MetadataResponsePartition describes one partition's leader.
type MetadataResponsePartition struct {
	Partition int32
	LeaderID  int32
	ErrorCode string
}

// MetadataResponseTopic describes one topic's partitions.
type MetadataResponseTopic struct {
	Topic      string
	ErrorCode  string
	Partitions []MetadataResponsePartition
}

// MetadataResponseBroker describes one broker entry (SPU) in a Metadata
// response.
type MetadataResponseBroker struct {
	NodeID int32
	Host   string
	Port   int32
}

// MetadataResponse is the Stream Controller's reply to a MetadataRequest.
type MetadataResponse struct {
	reqHeader
	Brokers []MetadataResponseBroker
	Topics  []MetadataResponseTopic
}

func (*MetadataResponse) Key() int16 { return KeyMetadata }

func (m *MetadataResponse) ReadFrom(buf []byte) error {
	r := kbin.NewReader(buf)
	brokerCount := r.Int32()
	m.Brokers = make([]MetadataResponseBroker, 0, brokerCount)
	for i := int32(0); i < brokerCount; i++ {
		var b MetadataResponseBroker
		b.NodeID = r.Int32()
		if host := r.String(); host != nil {
			b.Host = *host
		}
		b.Port = r.Int32()
		m.Brokers = append(m.Brokers, b)
	}

	topicCount := r.Int32()
	m.Topics = make([]MetadataResponseTopic, 0, topicCount)
	for i := int32(0); i < topicCount; i++ {
		var t MetadataResponseTopic
		if name := r.String(); name != nil {
			t.Topic = *name
		}
		if ec := r.String(); ec != nil {
			t.ErrorCode = *ec
		}
		partCount := r.Int32()
		t.Partitions = make([]MetadataResponsePartition, 0, partCount)
		for j := int32(0); j < partCount; j++ {
			var p MetadataResponsePartition
			p.Partition = r.Int32()
			p.LeaderID = r.Int32()
			if ec := r.String(); ec != nil {
				p.ErrorCode = *ec
			}
			t.Partitions = append(t.Partitions, p)
		}
		m.Topics = append(m.Topics, t)
	}
	return r.Err()
}
