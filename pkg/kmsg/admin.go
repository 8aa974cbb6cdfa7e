package kmsg

import (
	"time"

	"github.com/fluvio-go/fluvio/pkg/kbin"
)

// CreateTopicsRequestTopic is a single topic to create, carrying the
// TopicSpec fields from the data model.
type CreateTopicsRequestTopic struct {
	Topic             string
	Partitions        uint32
	ReplicationFactor uint16
	RetentionMillis   int64 // -1 if unset
	SegmentBytes      int64 // -1 if unset
}

// CreateTopicsRequest asks the Stream Controller to create one topic.
type CreateTopicsRequest struct {
	reqHeader
	Topics  []CreateTopicsRequestTopic
	TimeoutMillis int32
}

func (*CreateTopicsRequest) Key() int16 { return KeyCreateTopics }

func (r *CreateTopicsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(int32(len(r.Topics)))
	for _, t := range r.Topics {
		name := t.Topic
		w.String(&name)
		w.Int32(int32(t.Partitions))
		w.Int16(int16(t.ReplicationFactor))
		w.Int64(t.RetentionMillis)
		w.Int64(t.SegmentBytes)
	}
	w.Int32(r.TimeoutMillis)
	return w.Bytes()
}

func (*CreateTopicsRequest) ResponseKind() Response { return &CreateTopicsResponse{} }

// NewCreateTopicsRequest builds a request from TopicSpec fields, applying
// the data model's documented defaults (1 partition, RF 1) when partitions
// or replicationFactor is zero; a nil retention or segmentSize is sent as -1.
func NewCreateTopicsRequest(topic string, partitions uint32, replicationFactor uint16, retention *time.Duration, segmentSize *uint64, timeout time.Duration) *CreateTopicsRequest {
	if partitions == 0 {
		partitions = 1
	}
	if replicationFactor == 0 {
		replicationFactor = 1
	}
	t := CreateTopicsRequestTopic{
		Topic:             topic,
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		RetentionMillis:   -1,
		SegmentBytes:      -1,
	}
	if retention != nil {
		t.RetentionMillis = retention.Milliseconds()
	}
	if segmentSize != nil {
		t.SegmentBytes = int64(*segmentSize)
	}
	return &CreateTopicsRequest{
		Topics:        []CreateTopicsRequestTopic{t},
		TimeoutMillis: int32(timeout.Milliseconds()),
	}
}

// CreateTopicsResponseTopic reports the result for a single topic.
type CreateTopicsResponseTopic struct {
	Topic        string
	ErrorCode    string
	ErrorMessage string
}

// CreateTopicsResponse is the Stream Controller's reply.
type CreateTopicsResponse struct {
	reqHeader
	Topics []CreateTopicsResponseTopic
}

func (*CreateTopicsResponse) Key() int16 { return KeyCreateTopics }

func (resp *CreateTopicsResponse) ReadFrom(buf []byte) error {
	r := kbin.NewReader(buf)
	n := r.Int32()
	resp.Topics = make([]CreateTopicsResponseTopic, 0, n)
	for i := int32(0); i < n; i++ {
		var t CreateTopicsResponseTopic
		if name := r.String(); name != nil {
			t.Topic = *name
		}
		if ec := r.String(); ec != nil {
			t.ErrorCode = *ec
		}
		if em := r.String(); em != nil {
			t.ErrorMessage = *em
		}
		resp.Topics = append(resp.Topics, t)
	}
	return r.Err()
}

// DeleteTopicsRequest asks the Stream Controller to delete topics.
type DeleteTopicsRequest struct {
	reqHeader
	Topics        []string
	TimeoutMillis int32
}

func (*DeleteTopicsRequest) Key() int16 { return KeyDeleteTopics }

func (r *DeleteTopicsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(int32(len(r.Topics)))
	for _, t := range r.Topics {
		name := t
		w.String(&name)
	}
	w.Int32(r.TimeoutMillis)
	return w.Bytes()
}

func (*DeleteTopicsRequest) ResponseKind() Response { return &DeleteTopicsResponse{} }

// DeleteTopicsResponseTopic reports the result for a single topic.
type DeleteTopicsResponseTopic struct {
	Topic     string
	ErrorCode string
}

// DeleteTopicsResponse is the Stream Controller's reply.
type DeleteTopicsResponse struct {
	reqHeader
	Topics []DeleteTopicsResponseTopic
}

func (*DeleteTopicsResponse) Key() int16 { return KeyDeleteTopics }

func (resp *DeleteTopicsResponse) ReadFrom(buf []byte) error {
	r := kbin.NewReader(buf)
	n := r.Int32()
	resp.Topics = make([]DeleteTopicsResponseTopic, 0, n)
	for i := int32(0); i < n; i++ {
		var t DeleteTopicsResponseTopic
		if name := r.String(); name != nil {
			t.Topic = *name
		}
		if ec := r.String(); ec != nil {
			t.ErrorCode = *ec
		}
		resp.Topics = append(resp.Topics, t)
	}
	return r.Err()
}

// ApiVersionsRequest negotiates supported API versions and carries the
// platform-version handshake.
type ApiVersionsRequest struct {
	reqHeader
	ClientSoftwareName    string
	ClientSoftwareVersion string
}

func (*ApiVersionsRequest) Key() int16 { return KeyApiVersions }

func (r *ApiVersionsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(&r.ClientSoftwareName)
	w.String(&r.ClientSoftwareVersion)
	return w.Bytes()
}

func (*ApiVersionsRequest) ResponseKind() Response { return &ApiVersionsResponse{} }

// ApiVersionsResponseKey reports the min/max supported version for one API
// key.
type ApiVersionsResponseKey struct {
	ApiKey     int16
	MinVersion int16
	MaxVersion int16
}

// ApiVersionsResponse is the broker's reply, carrying PlatformVersion for
// the compatibility check.
type ApiVersionsResponse struct {
	reqHeader
	ErrorCode       string
	ApiKeys         []ApiVersionsResponseKey
	PlatformVersion string
}

func (*ApiVersionsResponse) Key() int16 { return KeyApiVersions }

func (resp *ApiVersionsResponse) ReadFrom(buf []byte) error {
	r := kbin.NewReader(buf)
	if ec := r.String(); ec != nil {
		resp.ErrorCode = *ec
	}
	n := r.Int32()
	resp.ApiKeys = make([]ApiVersionsResponseKey, 0, n)
	for i := int32(0); i < n; i++ {
		var k ApiVersionsResponseKey
		k.ApiKey = r.Int16()
		k.MinVersion = r.Int16()
		k.MaxVersion = r.Int16()
		resp.ApiKeys = append(resp.ApiKeys, k)
	}
	if pv := r.String(); pv != nil {
		resp.PlatformVersion = *pv
	}
	return r.Err()
}
