package vcs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestColocatedBackend_CreateWorkspaceWritesManifest(t *testing.T) {
	repo := initTestRepo(t)
	b := &ColocatedBackend{}

	ws := filepath.Join(t.TempDir(), "colo-ws")
	info, err := b.CreateWorkspace(repo, ws, "feature-wp01", "main")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if info.Branch != "feature-wp01" {
		t.Fatalf("expected branch feature-wp01, got %s", info.Branch)
	}

	if _, err := os.Stat(manifestPath(ws)); err != nil {
		t.Fatalf("expected manifest file: %v", err)
	}

	loaded, err := b.GetWorkspaceInfo(repo, ws)
	if err != nil {
		t.Fatalf("GetWorkspaceInfo: %v", err)
	}
	if loaded.Branch != info.Branch || loaded.BaseCommit != info.BaseCommit {
		t.Fatalf("manifest round-trip mismatch: got %+v, want %+v", loaded, info)
	}
}

func TestColocatedBackend_CapabilitiesAdvertiseSharedStore(t *testing.T) {
	b := &ColocatedBackend{}
	caps := b.Capabilities()
	if !caps.SharedObjectStore {
		t.Fatal("expected SharedObjectStore capability")
	}
	if caps.SeparateCheckouts {
		t.Fatal("colocated backend should not advertise SeparateCheckouts")
	}
}
