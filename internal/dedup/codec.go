package dedup

import (
	"fmt"
	"time"
)

// Attributes is the store's generic attribute representation: the shape
// a KV backend such as DynamoDB would hand back from GetItem/UpdateItem.
// SQL-backed Store implementations build one of these from a scanned row
// so they can share this package's codec instead of re-deriving the
// ms/seconds split and the absent-vs-null rule themselves.
type Attributes map[string]any

const (
	attrID          = "id"
	attrProcessorID = "processor_id"
	attrStartedAt   = "started_at"
	attrCompletedAt = "completed_at"
	attrExpiresOn   = "expires_on"
)

// Encode maps a Process to its attribute representation. Optional fields
// are omitted entirely (attribute absent), never written as an explicit
// null.
func Encode(p Process) Attributes {
	a := Attributes{
		attrID:          p.ID,
		attrProcessorID: p.ProcessorID,
		attrStartedAt:   p.StartedAt.UTC().UnixMilli(),
	}
	if p.CompletedAt != nil {
		a[attrCompletedAt] = p.CompletedAt.UTC().UnixMilli()
	}
	if p.ExpiresOn != nil {
		a[attrExpiresOn] = p.ExpiresOn.UTC().Unix()
	}
	return a
}

// Decode is the inverse of Encode. Required fields missing or malformed
// are fatal (ErrCorruptRecord); an optional field that is present but
// cannot be decoded — including an explicit null, which this codec
// treats as malformed rather than absent — is fatal too.
func Decode(a Attributes) (Process, error) {
	var p Process

	id, ok := a[attrID].(string)
	if !ok || id == "" {
		return Process{}, fmt.Errorf("%w: missing or invalid %q", ErrCorruptRecord, attrID)
	}
	p.ID = id

	procID, ok := a[attrProcessorID].(string)
	if !ok || procID == "" {
		return Process{}, fmt.Errorf("%w: missing or invalid %q", ErrCorruptRecord, attrProcessorID)
	}
	p.ProcessorID = procID

	startedMs, err := decodeInt64(a, attrStartedAt, true)
	if err != nil {
		return Process{}, err
	}
	p.StartedAt = time.UnixMilli(*startedMs).UTC()

	if v, present := a[attrCompletedAt]; present {
		if v == nil {
			return Process{}, fmt.Errorf("%w: explicit null for %q is not a valid encoding of absent", ErrCorruptRecord, attrCompletedAt)
		}
		completedMs, err := decodeInt64(a, attrCompletedAt, true)
		if err != nil {
			return Process{}, err
		}
		t := time.UnixMilli(*completedMs).UTC()
		p.CompletedAt = &t
	}

	if v, present := a[attrExpiresOn]; present {
		if v == nil {
			return Process{}, fmt.Errorf("%w: explicit null for %q is not a valid encoding of absent", ErrCorruptRecord, attrExpiresOn)
		}
		expSec, err := decodeInt64(a, attrExpiresOn, true)
		if err != nil {
			return Process{}, err
		}
		t := time.Unix(*expSec, 0).UTC()
		p.ExpiresOn = &t
	}

	if p.CompletedAt != nil && p.StartedAt.After(*p.CompletedAt) {
		return Process{}, fmt.Errorf("%w: startedAt after completedAt", ErrCorruptRecord)
	}
	if (p.CompletedAt == nil) != (p.ExpiresOn == nil) {
		return Process{}, fmt.Errorf("%w: completedAt and expiresOn must be present together", ErrCorruptRecord)
	}
	if p.ExpiresOn != nil && !p.ExpiresOn.After(*p.CompletedAt) {
		return Process{}, fmt.Errorf("%w: expiresOn must be after completedAt", ErrCorruptRecord)
	}

	return p, nil
}

func decodeInt64(a Attributes, key string, required bool) (*int64, error) {
	v, present := a[key]
	if !present {
		if required {
			return nil, fmt.Errorf("%w: missing %q", ErrCorruptRecord, key)
		}
		return nil, nil
	}
	switch n := v.(type) {
	case int64:
		return &n, nil
	case int:
		i := int64(n)
		return &i, nil
	default:
		return nil, fmt.Errorf("%w: %q has non-integer encoding %T", ErrCorruptRecord, key, v)
	}
}
