package kgo

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluvio-go/fluvio/pkg/ferr"
	"github.com/fluvio-go/fluvio/pkg/kmsg"
)

// maxFrameSize bounds the length prefix on a response frame, guarding
// against a corrupted size field forcing an unbounded read.
const maxFrameSize = 100 << 20

// pendingResp is a single in-flight request awaiting its correlated
// response, keyed by correlation id, mirroring the teacher's
// promisedReq/promisedResp pairing.
type pendingResp struct {
	resp kmsg.Response
	done chan error
}

// conn is a single TCP connection to one broker (SC or SPU), multiplexing
// concurrent requests over one corrID sequence the way the teacher's
// brokerCxn does, minus the per-API connection classes (cxnProduce,
// cxnFetch, ...) this simplified session does not need.
type conn struct {
	addr   string
	nc     net.Conn
	logger Logger

	corrID int32 // accessed only via atomic ops

	wMu sync.Mutex // serializes writes; one frame at a time

	mu      sync.Mutex
	pending map[int32]*pendingResp
	closed  bool
}

// dialConn opens addr (optionally over TLS), drives sasl to completion if
// non-nil, and starts the connection's read loop. The SASL exchange runs
// synchronously before the read loop starts: there is no concurrent
// reader yet, so the handshake can safely read raw frames off nc itself.
func dialConn(ctx context.Context, addr string, tlsCfg *tls.Config, sasl SASLMechanism, logger Logger) (*conn, error) {
	d := net.Dialer{}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, ferr.Errorf(ferr.CodeConnectFailed, "dial %s: %v", addr, err)
	}
	if tlsCfg != nil {
		tc := tls.Client(nc, tlsCfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, ferr.Errorf(ferr.CodeConnectFailed, "tls handshake with %s: %v", addr, err)
		}
		nc = tc
	}
	c := &conn{
		addr:    addr,
		nc:      nc,
		logger:  logger,
		pending: make(map[int32]*pendingResp),
	}
	if sasl != nil {
		if err := c.authenticate(ctx, sasl); err != nil {
			nc.Close()
			return nil, err
		}
	}
	go c.readLoop()
	return c, nil
}

// authenticate drives one SASL exchange over nc before any framed
// request/response traffic starts: it sends the mechanism name as the
// first frame, then alternates writing the mechanism's response bytes
// and reading the broker's challenge bytes (both length-prefixed with
// the same 4-byte frame convention every other request uses) until the
// mechanism reports completion.
func (c *conn) authenticate(ctx context.Context, mechanism SASLMechanism) error {
	if dl, ok := ctx.Deadline(); ok {
		c.nc.SetDeadline(dl)
		defer c.nc.SetDeadline(time.Time{})
	}

	if err := c.writeFrame([]byte(mechanism.Name())); err != nil {
		return ferr.Errorf(ferr.CodeConnectFailed, "sasl handshake: %v", err)
	}

	var challenge []byte
	for {
		response, done, err := mechanism.Authenticate(challenge)
		if err != nil {
			return ferr.Errorf(ferr.CodeInvalidCredentials, "sasl %s: %v", mechanism.Name(), err)
		}
		if err := c.writeFrame(response); err != nil {
			return ferr.Errorf(ferr.CodeConnectFailed, "sasl %s: %v", mechanism.Name(), err)
		}
		if done {
			return nil
		}
		challenge, err = c.readFrame()
		if err != nil {
			return ferr.Errorf(ferr.CodeConnectFailed, "sasl %s: %v", mechanism.Name(), err)
		}
	}
}

func (c *conn) writeFrame(payload []byte) error {
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	if _, err := c.nc.Write(sizeBuf[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(payload)
	return err
}

func (c *conn) readFrame() ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.nc, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	if size > maxFrameSize {
		return nil, ferr.New(ferr.CodeTruncatedFrame, "sasl frame size out of bounds")
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// do issues req, blocking until its matching response arrives, ctx is
// cancelled, or the connection dies. The returned kmsg.Response is the
// same concrete type req.ResponseKind() returned, populated in place.
func (c *conn) do(ctx context.Context, req kmsg.Request) (kmsg.Response, error) {
	corrID := atomic.AddInt32(&c.corrID, 1)

	frame, err := kmsg.WriteFrame(req, corrID, nil)
	if err != nil {
		return nil, err
	}

	resp := req.ResponseKind()
	resp.SetVersion(req.GetVersion())
	pr := &pendingResp{resp: resp, done: make(chan error, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ferr.ErrClosed
	}
	c.pending[corrID] = pr
	c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		c.nc.SetWriteDeadline(dl)
	}
	c.wMu.Lock()
	_, werr := c.nc.Write(frame)
	c.wMu.Unlock()
	if werr != nil {
		c.removePending(corrID)
		return nil, ferr.Errorf(ferr.CodeDisconnected, "write to %s: %v", c.addr, werr)
	}

	select {
	case err := <-pr.done:
		if err != nil {
			return nil, err
		}
		return resp, nil
	case <-ctx.Done():
		c.removePending(corrID)
		return nil, ferr.ErrTimeout
	}
}

func (c *conn) removePending(corrID int32) {
	c.mu.Lock()
	delete(c.pending, corrID)
	c.mu.Unlock()
}

// readLoop reads length-prefixed response frames and dispatches each to
// its waiting pendingResp by correlation id, until the connection fails.
func (c *conn) readLoop() {
	var sizeBuf [4]byte
	for {
		if _, err := io.ReadFull(c.nc, sizeBuf[:]); err != nil {
			c.dieWith(ferr.Errorf(ferr.CodeDisconnected, "read from %s: %v", c.addr, err))
			return
		}
		size := int32(binary.BigEndian.Uint32(sizeBuf[:]))
		if size < 4 || size > maxFrameSize {
			c.dieWith(ferr.Errorf(ferr.CodeTruncatedFrame, "response frame size %d out of bounds", size))
			return
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(c.nc, body); err != nil {
			c.dieWith(ferr.Errorf(ferr.CodeDisconnected, "read from %s: %v", c.addr, err))
			return
		}

		corrID, payload, err := kmsg.ReadResponseHeader(body)
		if err != nil {
			c.logger.Log(LogLevelWarn, "dropping unparsable response frame", "addr", c.addr, "err", err)
			continue
		}

		c.mu.Lock()
		pr, ok := c.pending[corrID]
		if ok {
			delete(c.pending, corrID)
		}
		c.mu.Unlock()
		if !ok {
			c.logger.Log(LogLevelDebug, "response for unknown correlation id", "addr", c.addr, "corrID", corrID)
			continue
		}

		if err := pr.resp.ReadFrom(payload); err != nil {
			pr.done <- err
			continue
		}
		pr.done <- nil
	}
}

func (c *conn) dieWith(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.nc.Close()
	for _, pr := range pending {
		pr.done <- err
	}
}

func (c *conn) close() {
	c.dieWith(ferr.ErrClosed)
}

// brokerAddr formats a MetadataResponseBroker's host/port as a dial
// address.
func brokerAddr(host string, port int32) string {
	return fmt.Sprintf("%s:%d", host, port)
}
