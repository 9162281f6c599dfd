// Package namespace is the single authority for translating human-chosen
// namespace names into the partition keys used by the vector index and the
// session store.
package namespace

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
)

// Default is the distinguished namespace used when the caller does not pick
// one. It is always addressable, whether or not any documents live under it,
// and it is stored under its literal key rather than an encoded one.
const Default = "__default__"

// Encode turns a display name into a key that satisfies the index's
// addressable-character constraints. Decode is the exact inverse.
func Encode(display string) string {
	if display == "" || display == Default {
		return Default
	}
	return base64.RawURLEncoding.EncodeToString([]byte(display))
}

// Decode recovers the display name from an encoded partition key.
func Decode(key string) (string, error) {
	if key == Default {
		return Default, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("decode namespace key %q: %w", key, err)
	}
	return string(raw), nil
}

// PartitionLister is the listing capability the directory needs from the
// indexed store.
type PartitionLister interface {
	ListNamespaces() []string
}

// Directory resolves namespace display names against the indexed store.
type Directory struct {
	index PartitionLister
}

func NewDirectory(index PartitionLister) *Directory {
	return &Directory{index: index}
}

// List returns the display names of all partitions currently holding vectors,
// sorted for stable output. An empty index yields an empty slice, not an
// error. Keys that do not decode are surfaced as-is so operators can spot
// foreign data; the default namespace stays valid whether or not it appears.
func (d *Directory) List(ctx context.Context) ([]string, error) {
	if d == nil || d.index == nil {
		return nil, fmt.Errorf("namespace directory not initialized")
	}
	keys := d.index.ListNamespaces()
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		display, err := Decode(key)
		if err != nil {
			names = append(names, key)
			continue
		}
		names = append(names, display)
	}
	sort.Strings(names)
	return names, nil
}
