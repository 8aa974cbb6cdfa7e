package kgo

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/exp/rand"

	"github.com/fluvio-go/fluvio/pkg/ferr"
	"github.com/fluvio-go/fluvio/pkg/kmsg"
)

// Sender is the cluster-session surface the producer dispatches through.
// *Client satisfies it; it is narrowed here so the producer can be tested
// against a fake without pulling in the whole session.
type Sender interface {
	// ProducePartition serializes and sends one partition's worth of
	// records to the leader SPU for (topic, partition), returning the
	// base offset the broker assigned.
	ProducePartition(ctx context.Context, topic string, partition int32, batch []byte, acks kmsg.Acks, timeout time.Duration) (baseOffset int64, err error)
	// PartitionerConfig returns the current partition count and
	// available-partition set for topic, refreshing metadata if stale.
	PartitionerConfig(ctx context.Context, topic string) (PartitionerConfig, error)
}

// Producer batches ProduceRecords per (topic, partition) and flushes them
// to the cluster, per the producer's batching algorithm.
type Producer struct {
	cfg    producerCfg
	sender Sender
	logger Logger

	mu      sync.Mutex
	batches map[partitionKey]*partitionBatch
	closed  bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

type partitionKey struct {
	topic     string
	partition int32
}

// NewProducer builds a Producer dispatching through sender.
func NewProducer(sender Sender, logger Logger, opts ...ProducerOpt) (*Producer, error) {
	cfg := defaultProducerCfg()
	for _, o := range opts {
		o.applyProducer(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Producer{
		cfg:     cfg,
		sender:  sender,
		logger:  logger,
		batches: make(map[partitionKey]*partitionBatch),
		rng:     rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
	}, nil
}

// Send enqueues value (with optional key) for topic and returns the
// broker-assigned offset once the batch it lands in has been flushed.
func (p *Producer) Send(ctx context.Context, topic string, value, key []byte) (int64, error) {
	offsets, err := p.SendBatch(ctx, topic, []ProduceRecord{{Topic: topic, Key: key, Value: value}})
	if err != nil {
		return 0, err
	}
	return offsets[0], nil
}

// SendBatch enqueues records, returning one offset per record in order
// once each record's containing batch has been flushed.
func (p *Producer) SendBatch(ctx context.Context, topic string, records []ProduceRecord) ([]int64, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ferr.ErrClosed
	}

	offsets := make([]int64, len(records))
	errs := make([]error, len(records))
	var wg sync.WaitGroup
	wg.Add(len(records))

	for i := range records {
		i := i
		rec := records[i]
		if rec.Topic == "" {
			rec.Topic = topic
		}

		partCfg, err := p.sender.PartitionerConfig(ctx, rec.Topic)
		if err != nil {
			errs[i] = err
			wg.Done()
			continue
		}
		partition, err := p.cfg.partitioner.Partition(rec.Topic, rec.Key, rec.Value, partCfg)
		if err != nil {
			errs[i] = err
			wg.Done()
			continue
		}

		p.appendToBatch(rec.Topic, partition, rec, func(offset int64, err error) {
			offsets[i] = offset
			errs[i] = err
			wg.Done()
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return offsets, err
		}
	}
	return offsets, nil
}

// appendToBatch appends rec to the (topic, partition) batch, flushing
// immediately if appending would overflow max_request_size (flush-before
// trigger) or if the append crosses the batch_size trigger.
func (p *Producer) appendToBatch(topic string, partition int32, rec ProduceRecord, promise func(int64, error)) {
	key := partitionKey{topic, partition}

	p.mu.Lock()
	batch, ok := p.batches[key]
	if !ok {
		batch = newPartitionBatch(topic, partition, p.triggerFlush)
		p.batches[key] = batch
	}
	p.mu.Unlock()

	shouldFlushBefore, tooLarge, sizeTriggered := batch.append(rec, promise, p.cfg.maxRequestSize, p.cfg.linger, p.cfg.batchSize)
	switch {
	case tooLarge:
		promise(0, ferr.New(ferr.CodeRecordTooLarge, "record exceeds max_request_size"))
	case shouldFlushBefore:
		p.flushBatch(context.Background(), key, batch)
		p.appendToBatch(topic, partition, rec, promise) // retry against the now-empty batch
	case sizeTriggered:
		go p.flushBatch(context.Background(), key, batch)
	}
}

func (p *Producer) triggerFlush(topic string, partition int32) {
	key := partitionKey{topic, partition}
	p.mu.Lock()
	batch := p.batches[key]
	p.mu.Unlock()
	if batch != nil {
		go p.flushBatch(context.Background(), key, batch)
	}
}

// Flush forces an immediate flush of every pending partition, returning
// once the broker has acknowledged all of them or one has failed
// terminally.
func (p *Producer) Flush(ctx context.Context) error {
	p.mu.Lock()
	keys := make([]partitionKey, 0, len(p.batches))
	batches := make([]*partitionBatch, 0, len(p.batches))
	for k, b := range p.batches {
		keys = append(keys, k)
		batches = append(batches, b)
	}
	p.mu.Unlock()

	errs := make([]error, len(keys))
	var wg sync.WaitGroup
	for i := range keys {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.flushBatch(ctx, keys[i], batches[i])
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// flushBatch drains batch and sends it, retrying transient errors up to
// cfg.retries times with exponential backoff, then resolving every
// drained record's promise with the outcome.
func (p *Producer) flushBatch(ctx context.Context, key partitionKey, batch *partitionBatch) error {
	recs := batch.drain()
	if len(recs) == 0 {
		return nil
	}

	wire, err := serializeBatch(recs, p.cfg.compression)
	if err != nil {
		failAll(recs, err)
		return err
	}
	acks := toWireAcks(p.cfg.acks)

	var baseOffset int64
	var sendErr error
	for attempt := 0; ; attempt++ {
		baseOffset, sendErr = p.sender.ProducePartition(ctx, key.topic, key.partition, wire, acks, p.cfg.timeout)
		if sendErr == nil {
			break
		}
		fe, retryable := sendErr.(*ferr.FluvioError)
		if !retryable || !fe.Retryable || attempt >= p.cfg.retries {
			failAll(recs, sendErr)
			return sendErr
		}
		delay := p.backoff(attempt)
		p.logger.Log(LogLevelWarn, "retrying produce after transient error",
			"topic", key.topic, "partition", key.partition, "attempt", attempt, "delay", delay, "err", sendErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			cancelErr := ferr.New(ferr.CodeCancelled, "produce cancelled: "+ctx.Err().Error())
			failAll(recs, cancelErr)
			return cancelErr
		}
	}

	for i, pr := range recs {
		pr.promise(baseOffset+int64(i), nil)
	}
	return nil
}

func failAll(recs []pendingRecord, err error) {
	for _, pr := range recs {
		pr.promise(0, err)
	}
}

// backoff computes the exponential-backoff-with-jitter retry delay for
// attempt: base 100ms, doubling, capped at 2s, with +-20% jitter so
// concurrently-retrying partitions don't all hammer the broker in lockstep.
func (p *Producer) backoff(attempt int) time.Duration {
	const base = 100 * time.Millisecond
	const capDelay = 2 * time.Second

	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > capDelay {
		d = capDelay
	}

	p.rngMu.Lock()
	jitter := 0.8 + p.rng.Float64()*0.4 // [0.8, 1.2)
	p.rngMu.Unlock()

	return time.Duration(float64(d) * jitter)
}

func toWireAcks(a Acks) kmsg.Acks {
	switch a {
	case AcksNone:
		return kmsg.AcksNone
	case AcksAll:
		return kmsg.AcksAll
	default:
		return kmsg.AcksLeader
	}
}

// Close flushes every pending batch and marks the producer unusable for
// further sends; it is idempotent.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.Flush(ctx)
}
