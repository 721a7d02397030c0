package emitter

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadClock_MissingFileInitializesZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clock.json")
	c := LoadClock(path)
	if c.Value != 0 {
		t.Fatalf("expected zero value, got %d", c.Value)
	}
	if c.NodeID == "" {
		t.Fatal("expected a derived node id")
	}
}

func TestLoadClock_CorruptFileInitializesZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clock.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := LoadClock(path)
	if c.Value != 0 {
		t.Fatalf("expected zero value on corrupt file, got %d", c.Value)
	}
}

func TestClock_TickIncrementsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clock.json")
	c := LoadClock(path)
	if got := c.Tick(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := c.Tick(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	reloaded := LoadClock(path)
	if reloaded.Value != 2 {
		t.Fatalf("expected persisted value 2, got %d", reloaded.Value)
	}
}

func TestClock_ReceiveReconcilesViaMax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clock.json")
	c := LoadClock(path)
	c.Tick() // local = 1

	if got := c.Receive(10); got != 11 {
		t.Fatalf("expected max(1,10)+1=11, got %d", got)
	}
	if got := c.Receive(3); got != 12 {
		t.Fatalf("expected max(11,3)+1=12, got %d", got)
	}
}

func TestNodeID_StableAndTwelveHexChars(t *testing.T) {
	id := NodeID()
	if len(id) != 12 {
		t.Fatalf("expected 12-char node id, got %q (%d)", id, len(id))
	}
	if id != NodeID() {
		t.Fatal("expected node id to be stable across calls")
	}
}
