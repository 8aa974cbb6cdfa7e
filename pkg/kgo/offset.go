package kgo

import (
	"encoding/hex"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// ResetStrategy is one of the four offset reset strategies the resolver
// understands.
type ResetStrategy uint8

const (
	Earliest ResetStrategy = iota
	Latest
	StoredOrEarliest
	StoredOrLatest
)

// ResolveOffset maps (stored, strategy, explicit) to a broker-facing
// offset per the table in the offset resolver design:
//
//	strategy          | stored present | stored absent
//	Earliest          | BEGINNING      | BEGINNING
//	Latest             | END            | END
//	StoredOrEarliest   | stored+1       | BEGINNING
//	StoredOrLatest     | stored+1       | END
//
// explicit, if non-nil, overrides all of the above.
func ResolveOffset(stored *int64, strategy ResetStrategy, explicit *int64) int64 {
	if explicit != nil {
		return *explicit
	}
	switch strategy {
	case Earliest:
		return OffsetBeginning
	case Latest:
		return OffsetEnd
	case StoredOrEarliest:
		if stored != nil {
			return *stored + 1
		}
		return OffsetBeginning
	case StoredOrLatest:
		if stored != nil {
			return *stored + 1
		}
		return OffsetEnd
	default:
		return OffsetBeginning
	}
}

// ResolveSentinel translates the data model's offset sentinels as the
// consumer does before issuing a fetch: BEGINNING -> 0, END -> -1,
// COMMITTED -> -2. Any non-sentinel offset passes through unchanged.
func ResolveSentinel(offset int64) int64 {
	switch offset {
	case OffsetBeginning:
		return 0
	case OffsetEnd:
		return -1
	case OffsetCommitted:
		return -2
	default:
		return offset
	}
}

// ConsumerID synthesizes a consumer-group identity string. It returns
// empty when group is empty (no group => no identity to synthesize).
// When instance is non-empty, the id is "{group}-{instance}"; otherwise
// it's "{group}-{rand8hex}" using 8 lowercase hex characters drawn from
// crypto/rand, matching the "cryptographically adequate random source"
// requirement.
func ConsumerID(group, instance string) (string, error) {
	if group == "" {
		return "", nil
	}
	if instance != "" {
		return fmt.Sprintf("%s-%s", group, instance), nil
	}
	b, err := uuid.GenerateRandomBytes(4)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", group, hex.EncodeToString(b)), nil
}
