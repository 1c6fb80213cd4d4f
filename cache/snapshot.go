package cache

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Snapshot is the durable JSON document written by the store:
//
//	{"entries": [[key, {...}], ...], "stats": {"hits": n, "misses": m}, "timestamp": ms}
//
// Timestamps are Unix milliseconds and ttl is in milliseconds (0 = never).
type Snapshot struct {
	Entries   []SnapshotEntry `json:"entries"`
	Stats     SnapshotStats   `json:"stats"`
	Timestamp int64           `json:"timestamp"`
}

// SnapshotStats carries the lookup counters across restarts.
type SnapshotStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// SnapshotEntry is one [key, entry] pair of Snapshot.Entries.
// Value is the JSON encoding of the cached value, or a base64 string of
// the Codec output when the store uses a Codec.
type SnapshotEntry struct {
	Key            string          `json:"-"`
	Value          json.RawMessage `json:"value"`
	CreatedAt      int64           `json:"createdAt"`
	TTL            int64           `json:"ttl"`
	AccessCount    uint64          `json:"accessCount"`
	LastAccessedAt int64           `json:"lastAccessedAt"`
	Tags           []string        `json:"tags"`
}

// snapshotEntryBody has the same fields without the pair (un)marshalers.
type snapshotEntryBody SnapshotEntry

// MarshalJSON encodes the entry as a two-element [key, body] array.
func (e SnapshotEntry) MarshalJSON() ([]byte, error) {
	body := snapshotEntryBody(e)
	if body.Tags == nil {
		body.Tags = []string{}
	}
	return json.Marshal([2]any{e.Key, body})
}

// UnmarshalJSON decodes a [key, body] array.
func (e *SnapshotEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("snapshot entry: want [key, entry], got %d elements", len(pair))
	}
	var key string
	if err := json.Unmarshal(pair[0], &key); err != nil {
		return fmt.Errorf("snapshot entry key: %w", err)
	}
	var body snapshotEntryBody
	if err := json.Unmarshal(pair[1], &body); err != nil {
		return fmt.Errorf("snapshot entry %q: %w", key, err)
	}
	*e = SnapshotEntry(body)
	e.Key = key
	return nil
}

// ErrCorruptSnapshot is wrapped by DecodeSnapshot for unparsable input.
var ErrCorruptSnapshot = errors.New("cache: corrupt snapshot")

// DecodeSnapshot parses a snapshot document. It does not interpret values,
// so it works without knowing the store's value type.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if snap.Timestamp <= 0 {
		return nil, fmt.Errorf("%w: missing timestamp", ErrCorruptSnapshot)
	}
	return &snap, nil
}
