package kv

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestPutGetDelete(t *testing.T) {
	s, _ := openTestStore(t)

	if _, found, err := s.Get("missing"); err != nil || found {
		t.Fatalf("missing key: found=%v err=%v", found, err)
	}

	if err := s.Put("k", "v1"); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, found, err := s.Get("k")
	if err != nil || !found || v != "v1" {
		t.Fatalf("get: %q found=%v err=%v", v, found, err)
	}

	// Upsert overwrites.
	if err := s.Put("k", "v2"); err != nil {
		t.Fatalf("put again: %v", err)
	}
	if v, _, _ := s.Get("k"); v != "v2" {
		t.Fatalf("after upsert: %q", v)
	}

	if err := s.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Get("k"); found {
		t.Fatal("key survived delete")
	}
}

func TestReopenPersists(t *testing.T) {
	s, path := openTestStore(t)
	if err := s.Put("durable", "yes"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, found, err := s2.Get("durable")
	if err != nil || !found || v != "yes" {
		t.Fatalf("after reopen: %q found=%v err=%v", v, found, err)
	}
}
