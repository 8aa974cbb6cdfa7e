package kgo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fluvio-go/fluvio/pkg/ferr"
)

type fakeFetcher struct {
	mu sync.Mutex

	// fetchResponses is consumed in order by FetchBatch.
	fetchResponses []fetchCall
	// streamResponses is consumed in order by StreamFetchOnce.
	streamResponses []streamCall
	streamCalls     int
	// forceRefreshSeen records the forceRefresh argument observed on each
	// StreamFetchOnce call, in order.
	forceRefreshSeen []bool
}

type fetchCall struct {
	records []Record
	hw      int64
	err     error
}

type streamCall struct {
	records       []Record
	hw, next      int64
	sessionID     string
	leaderChanged bool
	err           error
}

func (f *fakeFetcher) FetchBatch(ctx context.Context, topic string, partition int32, offset int64, maxBytes int32, timeout time.Duration) ([]Record, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fetchResponses) == 0 {
		return nil, 0, nil
	}
	next := f.fetchResponses[0]
	f.fetchResponses = f.fetchResponses[1:]
	return next.records, next.hw, next.err
}

func (f *fakeFetcher) StreamFetchOnce(ctx context.Context, topic string, partition int32, offset int64, maxBytes int32, sessionID string, forceRefresh bool) ([]Record, int64, int64, string, bool, error) {
	f.mu.Lock()
	idx := f.streamCalls
	f.streamCalls++
	f.forceRefreshSeen = append(f.forceRefreshSeen, forceRefresh)
	f.mu.Unlock()
	if idx >= len(f.streamResponses) {
		<-ctx.Done()
		return nil, 0, 0, "", false, ctx.Err()
	}
	c := f.streamResponses[idx]
	return c.records, c.hw, c.next, c.sessionID, c.leaderChanged, c.err
}

func TestConsumerPollAdvancesOffset(t *testing.T) {
	f := &fakeFetcher{
		fetchResponses: []fetchCall{
			{records: []Record{{Offset: 10}, {Offset: 11}, {Offset: 12}}, hw: 13},
		},
	}
	zero := int64(0)
	c := NewConsumer(f, nil, "t", 0, nil, Earliest, &zero)

	recs, err := c.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if c.nextOffset != 13 {
		t.Errorf("nextOffset = %d, want 13", c.nextOffset)
	}
}

func TestConsumerPollNoRecordsLeavesOffsetUnchanged(t *testing.T) {
	f := &fakeFetcher{fetchResponses: []fetchCall{{records: nil, hw: 0}}}
	explicit := int64(5)
	c := NewConsumer(f, nil, "t", 0, nil, Earliest, &explicit)
	if _, err := c.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.nextOffset != 5 {
		t.Errorf("nextOffset = %d, want unchanged 5", c.nextOffset)
	}
}

func TestConsumerPollPropagatesFetchError(t *testing.T) {
	f := &fakeFetcher{fetchResponses: []fetchCall{{err: ferr.ErrTimeout}}}
	c := NewConsumer(f, nil, "t", 0, nil, Latest, nil)
	if _, err := c.Poll(context.Background()); err == nil {
		t.Fatal("expected Poll to propagate the fetcher's error")
	}
}

func TestConsumerStreamDeliversRecordsInOrder(t *testing.T) {
	f := &fakeFetcher{
		streamResponses: []streamCall{
			{records: []Record{{Offset: 0}, {Offset: 1}}, next: 2, sessionID: "s1"},
		},
	}
	zero := int64(0)
	c := NewConsumer(f, nil, "t", 0, nil, Earliest, &zero)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recs, errs := c.Stream(ctx)
	var got []Record
	for i := 0; i < 2; i++ {
		select {
		case r := <-recs:
			got = append(got, r)
		case err := <-errs:
			t.Fatalf("unexpected error: %v", err)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for record")
		}
	}
	if got[0].Offset != 0 || got[1].Offset != 1 {
		t.Errorf("records out of order: %+v", got)
	}
}

func TestConsumerStreamRestartsSessionOnLeaderChange(t *testing.T) {
	f := &fakeFetcher{
		streamResponses: []streamCall{
			{leaderChanged: true, sessionID: "stale"},
			{records: []Record{{Offset: 7}}, next: 8, sessionID: "fresh"},
		},
	}
	seven := int64(7)
	c := NewConsumer(f, nil, "t", 0, nil, Earliest, &seven)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recs, errs := c.Stream(ctx)
	select {
	case r := <-recs:
		if r.Offset != 7 {
			t.Errorf("got offset %d, want 7", r.Offset)
		}
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for record after leader-change restart")
	}

	f.mu.Lock()
	seen := append([]bool(nil), f.forceRefreshSeen...)
	f.mu.Unlock()
	if len(seen) < 2 || seen[0] != false || seen[1] != true {
		t.Errorf("forceRefresh sequence = %v, want [false true, ...] (refresh after the leader-change continuation)", seen)
	}
}

func TestConsumerStreamSurfacesNonCancellationErrors(t *testing.T) {
	f := &fakeFetcher{
		streamResponses: []streamCall{{err: ferr.New(ferr.CodeUnauthorized, "nope")}},
	}
	c := NewConsumer(f, nil, "t", 0, nil, Latest, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, errs := c.Stream(ctx)
	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected a non-nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
}
