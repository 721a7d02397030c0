package emitter

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/atomicio"
)

// LamportClock is the causal clock persisted per feature (spec §4.F). It
// is monotone: Tick increments the local value; Receive reconciles with a
// remote value via max(local, remote)+1.
type LamportClock struct {
	mu        sync.Mutex
	path      string
	NodeID    string    `json:"node_id"`
	Value     uint64    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoadClock reads the clock persisted at path, initializing a fresh one
// (value zero, a freshly derived node id) if the file is missing or
// corrupt — per spec, a bad clock file is never a hard failure.
func LoadClock(path string) *LamportClock {
	c := &LamportClock{path: path}
	if err := atomicio.ReadJSON(path, c); err != nil || c.NodeID == "" {
		c.NodeID = NodeID()
		c.Value = 0
	}
	return c
}

// Tick increments the clock by one and persists the new value. Concurrent
// callers within one process must hold their own coordination; per spec
// §5 this method is not fully thread-safe across processes, only within
// one (the mutex here only protects against same-process races).
func (c *LamportClock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Value++
	c.UpdatedAt = time.Now()
	_ = atomicio.WriteJSON(c.path, c)
	return c.Value
}

// Receive reconciles the clock with a value observed from a remote node:
// new value is max(local, remote)+1.
func (c *LamportClock) Receive(remote uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.Value {
		c.Value = remote
	}
	c.Value++
	c.UpdatedAt = time.Now()
	_ = atomicio.WriteJSON(c.path, c)
	return c.Value
}

var (
	nodeIDOnce sync.Once
	nodeID     string
)

// NodeID derives a stable 12-char hex fingerprint for this machine from
// gopsutil host info (host id + hostname), cached for the process
// lifetime. Falls back to the hostname alone if host id lookup fails, and
// to a fixed literal if even the hostname is unavailable (e.g. in a
// restricted sandbox) so that clock initialization never fails.
func NodeID() string {
	nodeIDOnce.Do(func() {
		info, err := host.Info()
		var seed string
		if err == nil && info.HostID != "" {
			seed = info.HostID + info.Hostname
		} else if hn, herr := os.Hostname(); herr == nil {
			seed = hn
		} else {
			seed = "spec-kitty-unknown-host"
		}
		nodeID = fingerprint12(seed)
	})
	return nodeID
}

// fingerprint12 reduces an arbitrary seed string to a 12-char hex
// fingerprint using FNV-1a, which is adequate here since the node id only
// needs to be stable and roughly unique, not cryptographically so.
func fingerprint12(seed string) string {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(seed); i++ {
		h ^= uint64(seed[i])
		h *= 1099511628211
	}
	hex := fmt.Sprintf("%016x", h)
	hex = strings.ToLower(hex)
	return hex[:12]
}
