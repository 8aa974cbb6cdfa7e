package kgo

import "testing"

func int64p(v int64) *int64 { return &v }

func TestResolveOffsetTable(t *testing.T) {
	tests := []struct {
		name     string
		stored   *int64
		strategy ResetStrategy
		explicit *int64
		want     int64
	}{
		{"earliest, no stored", nil, Earliest, nil, OffsetBeginning},
		{"earliest, with stored", int64p(40), Earliest, nil, OffsetBeginning},
		{"latest, no stored", nil, Latest, nil, OffsetEnd},
		{"latest, with stored", int64p(40), Latest, nil, OffsetEnd},
		{"stored-or-earliest, no stored", nil, StoredOrEarliest, nil, OffsetBeginning},
		{"stored-or-earliest, with stored", int64p(40), StoredOrEarliest, nil, 41},
		{"stored-or-latest, no stored", nil, StoredOrLatest, nil, OffsetEnd},
		{"stored-or-latest, with stored", int64p(40), StoredOrLatest, nil, 41},
		{"explicit overrides everything", int64p(40), StoredOrLatest, int64p(7), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveOffset(tt.stored, tt.strategy, tt.explicit); got != tt.want {
				t.Errorf("ResolveOffset(%v, %v, %v) = %d, want %d", tt.stored, tt.strategy, tt.explicit, got, tt.want)
			}
		})
	}
}

func TestResolveOffsetIsTotal(t *testing.T) {
	for _, strategy := range []ResetStrategy{Earliest, Latest, StoredOrEarliest, StoredOrLatest} {
		for _, stored := range []*int64{nil, int64p(0), int64p(99)} {
			// Must not panic for any combination, and explicit=nil must
			// always return a sentinel or stored+1, never a random value.
			got := ResolveOffset(stored, strategy, nil)
			if got != OffsetBeginning && got != OffsetEnd && (stored == nil || got != *stored+1) {
				t.Errorf("ResolveOffset(%v, %v, nil) = %d is not one of the documented outcomes", stored, strategy, got)
			}
		}
	}
}

func TestConsumerIDEmptyGroup(t *testing.T) {
	id, err := ConsumerID("", "")
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("ConsumerID(\"\", \"\") = %q, want empty", id)
	}
}

func TestConsumerIDWithInstance(t *testing.T) {
	id, err := ConsumerID("mygroup", "replica-1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "mygroup-replica-1" {
		t.Errorf("ConsumerID = %q, want mygroup-replica-1", id)
	}
}

func TestConsumerIDWithoutInstanceIsRandomButPrefixed(t *testing.T) {
	id1, err := ConsumerID("mygroup", "")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := ConsumerID("mygroup", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(id1) <= len("mygroup-") {
		t.Fatalf("ConsumerID %q too short", id1)
	}
	if id1 == id2 {
		t.Errorf("two consecutive calls produced the same id: %q", id1)
	}
	if id1[:len("mygroup-")] != "mygroup-" {
		t.Errorf("ConsumerID %q does not start with mygroup-", id1)
	}
}
