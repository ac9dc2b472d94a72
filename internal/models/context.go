package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Context is the shared deployment context. The orchestrator owns the live
// map; agents only ever see snapshots, and passing agents' metrics are merged
// back under the agent's ResultsKey.
type Context map[string]any

// ResultsKey is the context key an agent's metrics are published under.
func ResultsKey(agentName string) string {
	return agentName + "_results"
}

// Snapshot returns a top-level copy of the context. Values are shared, so
// agents must treat nested structures as read-only.
func (c Context) Snapshot() Context {
	snap := make(Context, len(c))
	for k, v := range c {
		snap[k] = v
	}
	return snap
}

// Hash returns the SHA-256 of a canonical serialization of the context.
// Equal contents hash identically regardless of insertion order.
func (c Context) Hash() string {
	sum := sha256.Sum256(c.canonicalBytes())
	return hex.EncodeToString(sum[:])
}

// canonicalBytes serializes the context with sorted keys. JSON marshaling
// already sorts map keys; values JSON cannot represent fall back to a sorted
// key=value line rendering so the hash stays total.
func (c Context) canonicalBytes() []byte {
	if data, err := json.Marshal(map[string]any(c)); err == nil {
		return data
	}

	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v\n", k, c[k])
	}
	return []byte(b.String())
}

// Bool reads a boolean value, returning def when absent or mistyped.
func (c Context) Bool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// Float reads a numeric value, returning def when absent or mistyped.
func (c Context) Float(key string, def float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Int reads an integer value, returning def when absent or mistyped. JSON
// round-trips deliver numbers as float64, so those are accepted too.
func (c Context) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
