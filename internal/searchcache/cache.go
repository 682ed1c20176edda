// Package searchcache stores Text Search results keyed by (term, city, state).
// Entries never expire; a repeated search for the same key costs nothing.
package searchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shpitdev/leadfinder/pkg/places"
)

// Key identifies one Text Search.
type Key struct {
	Term  string `json:"term"`
	City  string `json:"city"`
	State string `json:"state"`
}

func (k Key) normalized() Key {
	return Key{
		Term:  normalize(k.Term),
		City:  normalize(k.City),
		State: normalize(k.State),
	}
}

// Hash is the content address of the key: hex sha256 of the normalized
// "term|city|state".
func (k Key) Hash() string {
	n := k.normalized()
	sum := sha256.Sum256([]byte(n.Term + "|" + n.City + "|" + n.State))
	return hex.EncodeToString(sum[:])
}

// Store caches Text Search results. Get reports a miss with ok=false and a nil error.
type Store interface {
	Get(ctx context.Context, k Key) (results []places.Place, ok bool, err error)
	Put(ctx context.Context, k Key, results []places.Place) error
}

type entry struct {
	Key     Key            `json:"key"`
	Results []places.Place `json:"results"`
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
