package kgo

import (
	"testing"
)

func TestHashRoundRobinPartitionerIsDeterministicForKey(t *testing.T) {
	p := NewHashRoundRobinPartitioner()
	cfg := PartitionerConfig{PartitionCount: 3, AvailablePartitions: []int32{0, 1, 2}}

	first, err := p.Partition("t", []byte("same-key"), nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		got, err := p.Partition("t", []byte("same-key"), nil, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if got != first {
			t.Fatalf("iteration %d: partition changed from %d to %d for the same key", i, first, got)
		}
	}
}

func TestHashRoundRobinPartitionerRoundRobinsEmptyKey(t *testing.T) {
	p := NewHashRoundRobinPartitioner()
	cfg := PartitionerConfig{PartitionCount: 3, AvailablePartitions: []int32{0, 1, 2}}

	var got []int32
	for i := 0; i < 9; i++ {
		part, err := p.Partition("t", nil, nil, cfg)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, part)
	}
	want := []int32{0, 1, 2, 0, 1, 2, 0, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: partition = %d, want %d (full sequence %v)", i, got[i], want[i], got)
			break
		}
	}
}

func TestHashRoundRobinPartitionerConcurrentRoundRobinIsFair(t *testing.T) {
	p := NewHashRoundRobinPartitioner()
	cfg := PartitionerConfig{PartitionCount: 3, AvailablePartitions: []int32{0, 1, 2}}

	const calls = 90
	counts := make([]int, 3)

	done := make(chan int32, calls)
	for i := 0; i < calls; i++ {
		go func() {
			part, err := p.Partition("t", nil, nil, cfg)
			if err != nil {
				t.Error(err)
				done <- -1
				return
			}
			done <- part
		}()
	}
	for i := 0; i < calls; i++ {
		part := <-done
		if part < 0 {
			continue
		}
		counts[part]++
	}

	for i, c := range counts {
		if c < 25 || c > 40 {
			t.Errorf("partition %d got %d of %d calls, expected roughly even distribution", i, c, calls)
		}
	}
}

func TestHashRoundRobinPartitionerFallsBackWhenPreferredUnavailable(t *testing.T) {
	p := NewHashRoundRobinPartitioner()
	cfg := PartitionerConfig{PartitionCount: 4, AvailablePartitions: []int32{1, 3}}

	part, err := p.Partition("t", []byte("some-key"), nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if part != 1 && part != 3 {
		t.Errorf("partition = %d, want one of the available partitions [1 3]", part)
	}
}

func TestHashRoundRobinPartitionerNoAvailablePartitions(t *testing.T) {
	p := NewHashRoundRobinPartitioner()
	cfg := PartitionerConfig{PartitionCount: 3}
	if _, err := p.Partition("t", nil, nil, cfg); err == nil {
		t.Fatal("expected an error when no partitions are available")
	}
}

func TestManualPartitionerSelectsFixedPartition(t *testing.T) {
	p := NewManualPartitioner(2)
	cfg := PartitionerConfig{PartitionCount: 3, AvailablePartitions: []int32{0, 1, 2}}
	got, err := p.Partition("t", nil, nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("partition = %d, want 2", got)
	}
}

func TestManualPartitionerErrorsWhenUnavailable(t *testing.T) {
	p := NewManualPartitioner(5)
	cfg := PartitionerConfig{PartitionCount: 3, AvailablePartitions: []int32{0, 1, 2}}
	if _, err := p.Partition("t", nil, nil, cfg); err == nil {
		t.Fatal("expected an error for an unavailable manual partition")
	}
}

func TestManualPartitionerRejectsNegativeAtConstruction(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic constructing a manual partitioner with a negative id")
		}
	}()
	NewManualPartitioner(-1)
}

func TestNextAvailableFromWrapsAround(t *testing.T) {
	avail := []int32{0, 2, 5}
	if got := nextAvailableFrom(avail, 3); got != 5 {
		t.Errorf("nextAvailableFrom(%v, 3) = %d, want 5", avail, got)
	}
	if got := nextAvailableFrom(avail, 6); got != 0 {
		t.Errorf("nextAvailableFrom(%v, 6) = %d, want 0 (wraps)", avail, got)
	}
	if got := nextAvailableFrom(avail, 0); got != 0 {
		t.Errorf("nextAvailableFrom(%v, 0) = %d, want 0", avail, got)
	}
}
