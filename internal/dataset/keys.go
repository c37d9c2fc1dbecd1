package dataset

import (
	"encoding/json"
	"fmt"
)

// MergeKeys describes how tables in a dataset join to each other.
//
// A cross-sectional dataset has one row per subject and joins on PrimaryID.
// A longitudinal dataset has many rows per subject, distinguished by
// SessionID, and joins on CompositeID when one is present.
//
// MergeKeys is a value type. Copies are independent and it is safe to share.
type MergeKeys struct {
	// PrimaryID is the subject identifier column. Always set.
	PrimaryID string

	// SessionID is the visit/session column. Empty means unset.
	SessionID string

	// CompositeID is the synthetic "<subject>_<session>" column. Empty means unset.
	CompositeID string

	// IsLongitudinal is true when the dataset carries several sessions per subject.
	IsLongitudinal bool
}

// Map keys used by ToMap / MergeKeysFromMap.
const (
	keyPrimaryID      = "primary_id"
	keySessionID      = "session_id"
	keyCompositeID    = "composite_id"
	keyIsLongitudinal = "is_longitudinal"
)

// MergeColumn returns the column every join and distinct-count uses.
//
// Longitudinal keys with a composite id merge on the composite id. Every
// other case merges on the primary id.
func (k MergeKeys) MergeColumn() string {
	if k.IsLongitudinal && k.CompositeID != "" {
		return k.CompositeID
	}
	return k.PrimaryID
}

// Validate checks the structural invariants of the keys.
func (k MergeKeys) Validate() error {
	if k.PrimaryID == "" {
		return NewConfigurationError("merge keys", "primary_id must not be empty", nil)
	}
	if k.IsLongitudinal && k.SessionID == "" {
		return NewConfigurationError("merge keys", "longitudinal keys require session_id", nil)
	}
	return nil
}

// ToMap serialises the keys to the plain map form used by UI session state.
// Unset optional fields are encoded as nil.
func (k MergeKeys) ToMap() map[string]any {
	return map[string]any{
		keyPrimaryID:      k.PrimaryID,
		keySessionID:      optional(k.SessionID),
		keyCompositeID:    optional(k.CompositeID),
		keyIsLongitudinal: k.IsLongitudinal,
	}
}

// MergeKeysFromMap is the inverse of ToMap.
//
// MergeKeysFromMap(k.ToMap()) == k for every k.
func MergeKeysFromMap(m map[string]any) (MergeKeys, error) {
	var k MergeKeys

	primary, ok := m[keyPrimaryID].(string)
	if !ok || primary == "" {
		return MergeKeys{}, NewValidationError("merge keys", "primary_id must be a non-empty string", nil)
	}
	k.PrimaryID = primary

	var err error
	if k.SessionID, err = optionalString(m, keySessionID); err != nil {
		return MergeKeys{}, err
	}
	if k.CompositeID, err = optionalString(m, keyCompositeID); err != nil {
		return MergeKeys{}, err
	}

	switch v := m[keyIsLongitudinal].(type) {
	case nil:
	case bool:
		k.IsLongitudinal = v
	default:
		return MergeKeys{}, NewValidationError("merge keys",
			fmt.Sprintf("is_longitudinal must be a bool, got %T", v), nil)
	}

	return k, nil
}

// MarshalJSON encodes the keys in their map form so unset fields appear as null.
func (k MergeKeys) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.ToMap())
}

// UnmarshalJSON decodes the map form produced by MarshalJSON.
func (k *MergeKeys) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	decoded, err := MergeKeysFromMap(m)
	if err != nil {
		return err
	}
	*k = decoded
	return nil
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func optionalString(m map[string]any, key string) (string, error) {
	switch v := m[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", NewValidationError("merge keys", fmt.Sprintf("%s must be a string or nil, got %T", key, v), nil)
	}
}
