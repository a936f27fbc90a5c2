package store

import (
	"encoding/json"
	"fmt"

	"github.com/meridianml/feature-store/internal/domain"
)

// EncodeValue serializes a scalar feature value for storage
func EncodeValue(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return string(data), nil
}

// DecodeValue deserializes a stored feature value. Failure surfaces as
// domain.ErrCorruptValue so callers can distinguish corruption from absence.
func DecodeValue(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCorruptValue, err.Error())
	}
	return v, nil
}

// DecodeNumeric deserializes a stored value expected to be numeric
func DecodeNumeric(raw string) (float64, error) {
	var v float64
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrCorruptValue, err.Error())
	}
	return v, nil
}
