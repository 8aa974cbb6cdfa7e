package kgo

import (
	"context"
	"time"

	"github.com/fluvio-go/fluvio/pkg/ferr"
	"github.com/fluvio-go/fluvio/pkg/kbin"
	"github.com/fluvio-go/fluvio/pkg/kmsg"
)

// Fetcher is the cluster-session surface the consumer pulls through.
// *Client satisfies it; narrowed here for the same testability reason as
// Sender.
type Fetcher interface {
	// FetchBatch performs one bounded fetch against (topic, partition)
	// starting at offset, returning the decoded records and the
	// partition's high watermark.
	FetchBatch(ctx context.Context, topic string, partition int32, offset int64, maxBytes int32, timeout time.Duration) (records []Record, highWatermark int64, err error)
	// StreamFetchOnce performs one Stream-Fetch continuation, returning
	// decoded records, the high watermark, the offset to resume from on
	// the next call, the session id to echo back, and whether the
	// partition's leader changed (the caller should refresh metadata and
	// restart the stream with a fresh session). forceRefresh asks the
	// implementation to re-resolve the partition's leader before routing
	// the request, the way the caller does right after a leader change.
	StreamFetchOnce(ctx context.Context, topic string, partition int32, offset int64, maxBytes int32, sessionID string, forceRefresh bool) (records []Record, highWatermark, nextOffset int64, newSessionID string, leaderChanged bool, err error)
}

// decodeBatches turns the raw serialized record batches a Fetch/Stream-
// Fetch response carries into delivered Records, applying the consumer's
// CRC-mismatch and compression handling.
func decodeBatches(logger Logger, topic string, partition int32, raw [][]byte) []Record {
	var out []Record
	for _, buf := range raw {
		rb, payload, _, err := kbin.ParseRecordBatchHeader(buf)
		if err != nil {
			logger.Log(LogLevelWarn, "discarding unreadable record batch", "topic", topic, "partition", partition, "err", err)
			continue
		}
		codec := Compression(int16(rb.Attributes) & kbin.AttrCompressionMask)
		decompressed, err := decompress(codec, payload)
		if err != nil {
			logger.Log(LogLevelWarn, "discarding record batch with bad compressed payload", "topic", topic, "partition", partition, "err", err)
			continue
		}
		records, err := kbin.DecodeRecords(decompressed, rb.RecordCount())
		if err != nil {
			logger.Log(LogLevelWarn, "discarding record batch with malformed records", "topic", topic, "partition", partition, "err", err)
			continue
		}
		for i, br := range records {
			rec := Record{
				Topic:     topic,
				Partition: partition,
				Offset:    rb.BaseOffset + int64(i),
				Timestamp: time.UnixMilli(rb.BaseTimestamp + br.TimestampDelta),
				Key:       br.Key,
				Value:     br.Value,
			}
			if !br.HeadersAbsent {
				rec.Headers = make([]RecordHeader, len(br.Headers))
				for j, h := range br.Headers {
					rec.Headers[j] = RecordHeader{Key: h.Name, Value: h.Value}
				}
			}
			out = append(out, rec)
		}
	}
	return out
}

// FetchBatch implements Fetcher: a bounded, single-shot fetch.
func (c *Client) FetchBatch(ctx context.Context, topic string, partition int32, offset int64, maxBytes int32, timeout time.Duration) ([]Record, int64, error) {
	cn, err := c.spuFor(ctx, topic, partition, false)
	if err != nil {
		return nil, 0, err
	}
	req := &kmsg.FetchRequest{
		Topic:         topic,
		Partition:     partition,
		FetchOffset:   ResolveSentinel(offset),
		MaxBytes:      maxBytes,
		TimeoutMillis: int32(timeout.Milliseconds()),
	}
	resp, err := c.request(ctx, cn, req)
	if err != nil {
		return nil, 0, err
	}
	fetchResp := resp.(*kmsg.FetchResponse)
	if fetchResp.ErrorCode != "" {
		code := ferr.ErrorForBrokerCode(fetchResp.ErrorCode)
		if code == ferr.CodeLeaderNotAvailable || code == ferr.CodeUnknownTopicOrPartition {
			c.mu.Lock()
			delete(c.metadata, topic)
			c.mu.Unlock()
		}
		return nil, 0, ferr.New(code, fetchResp.ErrorCode)
	}
	return decodeBatches(c.cfg.logger, topic, partition, fetchResp.Batches), fetchResp.HighWatermark, nil
}

// StreamFetchOnce implements Fetcher: one Stream-Fetch continuation.
func (c *Client) StreamFetchOnce(ctx context.Context, topic string, partition int32, offset int64, maxBytes int32, sessionID string, forceRefresh bool) ([]Record, int64, int64, string, bool, error) {
	cn, err := c.spuFor(ctx, topic, partition, forceRefresh)
	if err != nil {
		return nil, 0, 0, "", false, err
	}
	req := &kmsg.StreamFetchRequest{
		Topic:       topic,
		Partition:   partition,
		FetchOffset: ResolveSentinel(offset),
		MaxBytes:    maxBytes,
		SessionID:   sessionID,
	}
	resp, err := c.request(ctx, cn, req)
	if err != nil {
		return nil, 0, 0, "", false, err
	}
	sfResp := resp.(*kmsg.StreamFetchResponse)
	if sfResp.ErrorCode != "" {
		code := ferr.ErrorForBrokerCode(sfResp.ErrorCode)
		if code == ferr.CodeLeaderNotAvailable || code == ferr.CodeUnknownTopicOrPartition {
			c.mu.Lock()
			delete(c.metadata, topic)
			c.mu.Unlock()
		}
		return nil, 0, 0, "", false, ferr.New(code, sfResp.ErrorCode)
	}
	if sfResp.LeaderChanged {
		// The broker itself is reporting a successful response but flagging
		// that this partition has moved; the cached leader map is now
		// stale even though nothing here returned an error, so drop it the
		// same way an explicit LeaderNotAvailable would.
		c.mu.Lock()
		delete(c.metadata, topic)
		c.mu.Unlock()
	}
	records := decodeBatches(c.cfg.logger, topic, partition, sfResp.Batches)
	return records, sfResp.HighWatermark, sfResp.NextOffset, sfResp.SessionID, sfResp.LeaderChanged, nil
}

// Consumer pulls records from one (topic, partition), resolving its
// starting offset once at construction and then tracking nextOffset as
// fetches and stream continuations advance it.
type Consumer struct {
	fetcher   Fetcher
	logger    Logger
	topic     string
	partition int32

	nextOffset int64
	maxBytes   int32
	timeout    time.Duration

	sessionID string
}

// ConsumerOpt configures a Consumer at construction.
type ConsumerOpt func(*Consumer)

// WithMaxBytes bounds the size of a single fetch response, default 1MiB.
func WithMaxBytes(n int32) ConsumerOpt {
	return func(c *Consumer) {
		if n != 0 {
			c.maxBytes = n
		}
	}
}

// WithFetchTimeout bounds how long the broker waits to satisfy a bounded
// fetch before returning what it has, default 5s.
func WithFetchTimeout(d time.Duration) ConsumerOpt {
	return func(c *Consumer) {
		if d != 0 {
			c.timeout = d
		}
	}
}

// NewConsumer builds a Consumer for (topic, partition), resolving its
// initial offset from (stored, strategy, explicit) per ResolveOffset.
func NewConsumer(fetcher Fetcher, logger Logger, topic string, partition int32, stored *int64, strategy ResetStrategy, explicit *int64, opts ...ConsumerOpt) *Consumer {
	if logger == nil {
		logger = nopLogger{}
	}
	c := &Consumer{
		fetcher:    fetcher,
		logger:     logger,
		topic:      topic,
		partition:  partition,
		nextOffset: ResolveOffset(stored, strategy, explicit),
		maxBytes:   1 << 20,
		timeout:    5 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Poll performs one bounded fetch starting at the consumer's current
// offset, advancing it past whatever records were returned.
func (c *Consumer) Poll(ctx context.Context) ([]Record, error) {
	records, _, err := c.fetcher.FetchBatch(ctx, c.topic, c.partition, c.nextOffset, c.maxBytes, c.timeout)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		c.nextOffset = records[len(records)-1].Offset + 1
	}
	return records, nil
}

// Stream runs a pull-based, restartable Stream-Fetch loop, sending
// decoded records on the returned channel until ctx is cancelled. On a
// leader change the stream is transparently restarted at
// last_delivered_offset+1 with a fresh session, per the consumer design's
// failure semantics; other errors are sent on the error channel and end
// the stream.
func (c *Consumer) Stream(ctx context.Context) (<-chan Record, <-chan error) {
	recs := make(chan Record)
	errs := make(chan error, 1)

	go func() {
		defer close(recs)
		defer close(errs)
		forceRefresh := false
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, hw, next, sid, leaderChanged, err := c.fetcher.StreamFetchOnce(ctx, c.topic, c.partition, c.nextOffset, c.maxBytes, c.sessionID, forceRefresh)
			forceRefresh = false
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errs <- err
				return
			}
			_ = hw

			if leaderChanged {
				c.logger.Log(LogLevelInfo, "stream leader changed, restarting session", "topic", c.topic, "partition", c.partition, "resume_offset", c.nextOffset)
				c.sessionID = ""
				forceRefresh = true
				continue
			}

			for _, r := range batch {
				select {
				case recs <- r:
					c.nextOffset = r.Offset + 1
				case <-ctx.Done():
					return
				}
			}
			c.sessionID = sid
			if next != 0 {
				c.nextOffset = next
			}
		}
	}()

	return recs, errs
}
