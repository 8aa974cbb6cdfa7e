// Package kmsg contains the typed request/response shapes for the subset
// of the broker wire protocol the core needs: API-Version negotiation,
// Metadata, Create/Delete-Topic, Produce, Fetch, and Stream-Fetch.
//
// Each type's AppendTo/ReadFrom pair implements the framing in SPEC_FULL.md
// §6, built on pkg/kbin for every primitive.
package kmsg

import "github.com/fluvio-go/fluvio/pkg/kbin"

// API keys for the requests this core supports.
const (
	KeyProduce      int16 = 0
	KeyFetch        int16 = 1
	KeyMetadata     int16 = 3
	KeyStreamFetch  int16 = 20
	KeyCreateTopics int16 = 19
	KeyDeleteTopics int16 = 21
	KeyApiVersions  int16 = 18
)

// Request is anything that can be issued to the broker.
type Request interface {
	Key() int16
	// SetVersion/GetVersion track the negotiated request version,
	// mirroring the version-pinning contract real Kafka clients use.
	SetVersion(int16)
	GetVersion() int16
	// AppendTo appends the request body (after the shared frame header)
	// to dst and returns the extended slice.
	AppendTo(dst []byte) []byte
	// ResponseKind returns an empty Response of the kind this request
	// expects, for the caller to decode into.
	ResponseKind() Response
}

// Response is anything the broker replies with.
type Response interface {
	Key() int16
	SetVersion(int16)
	GetVersion() int16
	// ReadFrom parses buf (the response body, after the shared
	// correlation-id frame header) into the receiver.
	ReadFrom(buf []byte) error
}

// reqHeader/respHeader are shared by every concrete request/response below.
type reqHeader struct {
	version int16
}

func (h *reqHeader) SetVersion(v int16) { h.version = v }
func (h *reqHeader) GetVersion() int16  { return h.version }

// WriteFrame writes the full wire frame for req (length, api key/version,
// correlation id, client id) followed by req's own payload, per
// SPEC_FULL.md §6's frame layout.
func WriteFrame(req Request, correlationID int32, clientID *string) ([]byte, error) {
	w := kbin.NewWriter(nil)
	w.Int32(0) // size placeholder
	w.Int16(req.Key())
	w.Int16(req.GetVersion())
	w.Int32(correlationID)
	if err := w.String(clientID); err != nil {
		return nil, err
	}
	body := req.AppendTo(w.Bytes())
	out := body
	size := int32(len(out) - 4)
	out[0] = byte(size >> 24)
	out[1] = byte(size >> 16)
	out[2] = byte(size >> 8)
	out[3] = byte(size)
	return out, nil
}

// ReadResponseHeader reads the i32 correlation id prefixing every response
// body and returns it along with the remaining payload.
func ReadResponseHeader(buf []byte) (correlationID int32, payload []byte, err error) {
	r := kbin.NewReader(buf)
	corr := r.Int32()
	if r.Err() != nil {
		return 0, nil, r.Err()
	}
	return corr, r.Remaining(), nil
}
