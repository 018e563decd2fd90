package store

import (
	"testing"
	"time"
)

func TestValidatePayload(t *testing.T) {
	valid := []Payload{
		{"ra": 83.82, "dec": -5.39},
		{"name": "M42", "visible": true, "magnitude": 4},
		{"observed_at": time.Now().UTC()},
		{"nested": Payload{"deep": Payload{"value": "ok"}}},
		{"history": []any{"a", 1, true, nil, Payload{"x": 1.0}}},
		{"empty": nil},
	}
	for i, p := range valid {
		if err := ValidatePayload(p); err != nil {
			t.Errorf("Payload %d should be valid, got %v", i, err)
		}
	}

	invalid := []Payload{
		nil,
		{"": "empty field name"},
		{"callback": func() {}},
		{"channel": make(chan int)},
		{"nested": Payload{"": "empty nested name"}},
		{"nested": Payload{"bad": func() {}}},
		{"list": []any{1, func() {}}},
	}
	for i, p := range invalid {
		err := ValidatePayload(p)
		if CodeOf(err) != RetCInvalidPayload {
			t.Errorf("Payload %d should be rejected with InvalidPayload, got %v", i, err)
		}
	}
}

func TestClonePayloadIsDeep(t *testing.T) {
	original := Payload{
		"scalar": 1.5,
		"nested": Payload{"value": "a"},
		"list":   []any{Payload{"item": true}},
	}

	clone := ClonePayload(original)
	clone["scalar"] = 2.5
	clone["nested"].(Payload)["value"] = "b"
	clone["list"].([]any)[0].(Payload)["item"] = false

	if original["scalar"] != 1.5 {
		t.Error("Clone shares the top-level map")
	}
	if original["nested"].(Payload)["value"] != "a" {
		t.Error("Clone shares nested maps")
	}
	if original["list"].([]any)[0].(Payload)["item"] != true {
		t.Error("Clone shares maps inside arrays")
	}
}

func TestErrorCodes(t *testing.T) {
	if CodeOf(nil) != RetCSuccess {
		t.Error("nil should map to Success")
	}

	err := NewError(RetCNotFound, "gone")
	if !IsNotFound(err) {
		t.Error("Expected IsNotFound")
	}
	if IsConflict(err) || IsUnavailable(err) {
		t.Error("NotFound must not match other predicates")
	}

	if !IsUnavailable(NewError(RetCConnectionUnavailable, "down")) {
		t.Error("ConnectionUnavailable should be unavailable")
	}
	if !IsUnavailable(NewError(RetCStoreUnavailable, "offline")) {
		t.Error("StoreUnavailable should be unavailable")
	}
	if !IsConflict(NewError(RetCUpdateConflict, "raced")) {
		t.Error("Expected IsConflict")
	}
}
