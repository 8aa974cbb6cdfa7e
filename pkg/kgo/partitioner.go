package kgo

import (
	"sync/atomic"

	"github.com/fluvio-go/fluvio/pkg/ferr"
)

// PartitionerConfig is the input a Partitioner selects from: the total
// partition count for the topic and the subset currently available
// (e.g. with a live leader).
type PartitionerConfig struct {
	PartitionCount     int32
	AvailablePartitions []int32
}

// Partitioner selects a destination partition for a record, generalizing
// the teacher's Partitioner/TopicPartitioner split into the two variants
// the spec requires: hash+round-robin and manual.
type Partitioner interface {
	// Partition returns a partition id taken from cfg.AvailablePartitions,
	// or an error if selection is impossible (PartitionUnavailable,
	// NoAvailablePartitions).
	Partition(topic string, key, value []byte, cfg PartitionerConfig) (int32, error)
}

// hashRoundRobinPartitioner implements the spec's default: SipHash-2-4 of
// a non-empty key selects deterministically; an absent/empty key advances
// a shared atomic round-robin counter.
type hashRoundRobinPartitioner struct {
	counter uint64 // accessed only via atomic ops, per the concurrency model
}

// NewHashRoundRobinPartitioner returns the default partitioner: key-hash
// selection when a non-empty key is present, atomic round-robin otherwise.
func NewHashRoundRobinPartitioner() Partitioner {
	return &hashRoundRobinPartitioner{}
}

func (p *hashRoundRobinPartitioner) Partition(topic string, key, value []byte, cfg PartitionerConfig) (int32, error) {
	avail := cfg.AvailablePartitions
	if len(avail) == 0 {
		return 0, ferr.ErrNoAvailablePartitions
	}
	if len(key) > 0 {
		h := sipHash24(key)
		want := int32(h % uint64(cfg.PartitionCount))
		for _, p := range avail {
			if p == want {
				return p, nil
			}
		}
		// want is not currently available: return the next available
		// partition in cyclic order starting from want.
		return nextAvailableFrom(avail, want), nil
	}
	n := atomic.AddUint64(&p.counter, 1) - 1
	return avail[n%uint64(len(avail))], nil
}

// nextAvailableFrom returns the smallest entry of avail that is >= from,
// cyclically wrapping to the smallest entry overall if none qualifies.
func nextAvailableFrom(avail []int32, from int32) int32 {
	best := avail[0]
	haveCandidate := false
	smallest := avail[0]
	for _, p := range avail {
		if p < smallest {
			smallest = p
		}
		if p >= from && (!haveCandidate || p < best) {
			best = p
			haveCandidate = true
		}
	}
	if !haveCandidate {
		return smallest
	}
	return best
}

// manualPartitioner always selects a fixed partition id, failing at
// selection time if that id is not currently available.
type manualPartitioner struct {
	partition int32
}

// NewManualPartitioner returns a partitioner fixed to partition. It panics
// if partition is negative, per the "rejects negative ids at
// construction" invariant -- callers are expected to pass a
// constant/validated id, not user input, matching the teacher's own
// ManualPartitioner constructor contract.
func NewManualPartitioner(partition int32) Partitioner {
	if partition < 0 {
		panic("kgo: manual partitioner requires a non-negative partition id")
	}
	return &manualPartitioner{partition: partition}
}

func (p *manualPartitioner) Partition(topic string, key, value []byte, cfg PartitionerConfig) (int32, error) {
	if len(cfg.AvailablePartitions) == 0 {
		return 0, ferr.ErrNoAvailablePartitions
	}
	for _, a := range cfg.AvailablePartitions {
		if a == p.partition {
			return p.partition, nil
		}
	}
	return 0, ferr.NewPartitionUnavailable(p.partition, cfg.AvailablePartitions)
}

// sipHash24 computes SipHash-2-4 over b with a fixed all-zero 128-bit key,
// per the partitioner design ("fixed zero key").
func sipHash24(b []byte) uint64 {
	const (
		c0 = 0x736f6d6570736575
		c1 = 0x646f72616e646f6d
		c2 = 0x6c7967656e657261
		c3 = 0x7465646279746573
	)
	// k0 = k1 = 0 (fixed zero key)
	v0 := uint64(c0)
	v1 := uint64(c1)
	v2 := uint64(c2)
	v3 := uint64(c3)

	round := func() {
		v0 += v1
		v1 = rotl(v1, 13)
		v1 ^= v0
		v0 = rotl(v0, 32)
		v2 += v3
		v3 = rotl(v3, 16)
		v3 ^= v2
		v0 += v3
		v3 = rotl(v3, 21)
		v3 ^= v0
		v2 += v1
		v1 = rotl(v1, 17)
		v1 ^= v2
		v2 = rotl(v2, 32)
	}

	length := len(b)
	end := length - (length % 8)

	for i := 0; i < end; i += 8 {
		m := leUint64(b[i : i+8])
		v3 ^= m
		round()
		round()
		v0 ^= m
	}

	var last uint64 = uint64(length&0xff) << 56
	tail := b[end:]
	for i := len(tail) - 1; i >= 0; i-- {
		last |= uint64(tail[i]) << uint(8*i)
	}
	v3 ^= last
	round()
	round()
	v0 ^= last

	v2 ^= 0xff
	round()
	round()
	round()
	round()

	return v0 ^ v1 ^ v2 ^ v3
}

func rotl(x uint64, b uint) uint64 {
	return (x << b) | (x >> (64 - b))
}

func leUint64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}
