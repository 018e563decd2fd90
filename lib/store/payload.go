package store

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Payload Validation
// --------------------------------------------------------------------------

// ValidatePayload checks that a payload only contains values the store can
// persist: strings, booleans, integers, floats, timestamps, nil, nested
// payloads and arrays thereof. The shape is validated before persisting,
// not after reading back.
func ValidatePayload(p Payload) error {
	if p == nil {
		return NewError(RetCInvalidPayload, "payload must not be nil")
	}
	for key, value := range p {
		if key == "" {
			return NewError(RetCInvalidPayload, "payload field names must not be empty")
		}
		if err := validateValue(key, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, value any) error {
	switch v := value.(type) {
	case nil, bool, string, time.Time:
		return nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return nil
	case float32, float64:
		return nil
	case Payload:
		for key, nested := range v {
			if key == "" {
				return NewError(RetCInvalidPayload, fmt.Sprintf("payload field %q: nested field names must not be empty", path))
			}
			if err := validateValue(path+"."+key, nested); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, item := range v {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
		return nil
	default:
		return NewError(RetCInvalidPayload, fmt.Sprintf("payload field %q has unsupported type %T", path, value))
	}
}

// --------------------------------------------------------------------------
// Payload Helpers
// --------------------------------------------------------------------------

// ClonePayload returns a deep copy of the payload. Stores hand out clones
// so that callers can never mutate cached state through a returned Record.
func ClonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	clone := make(Payload, len(p))
	for key, value := range p {
		clone[key] = cloneValue(value)
	}
	return clone
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case Payload:
		return ClonePayload(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = cloneValue(item)
		}
		return items
	default:
		return v
	}
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	clone := r
	clone.Payload = ClonePayload(r.Payload)
	return clone
}
