package creds

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterVerifyDelete(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.Register("alice", "pw1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !ok {
		t.Fatal("Register(alice) = false, want true")
	}

	ok, _ = s.Register("alice", "pw2")
	if ok {
		t.Fatal("Register(alice) second time = true, want false")
	}

	ok, _ = s.Verify("alice", "pw1")
	if !ok {
		t.Fatal("Verify(alice, pw1) = false, want true")
	}
	ok, _ = s.Verify("alice", "wrong")
	if ok {
		t.Fatal("Verify(alice, wrong) = true, want false")
	}
	ok, _ = s.Verify("GUEST", "x")
	if ok {
		t.Fatal("Verify(GUEST) = true, want false")
	}

	deleted, err := s.Delete("alice")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatal("Delete(alice) = false, want true")
	}
	deleted, _ = s.Delete("alice")
	if deleted {
		t.Fatal("second Delete(alice) = true, want false")
	}
}

func TestRegisterGuestRejected(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Register("GUEST", "pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ok {
		t.Fatal("Register(GUEST) = true, want false")
	}
}

func TestListAndAudit(t *testing.T) {
	s := newTestStore(t)
	s.Register("bob", "pw")

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, ok := list["bob"]; !ok {
		t.Fatal("List() missing bob")
	}

	if err := s.Audit("ADMIN", "DELUSER", "bob"); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	entries, err := s.ListAudit()
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 1 || entries[0].Target != "bob" {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

func TestRegisterAdminRejected(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.Register("ADMIN", "pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ok {
		t.Fatal("Register(ADMIN) = true, want false")
	}
	exists, err := s.exists("ADMIN")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("Register(ADMIN) created a row despite returning false")
	}
	ok, _ = s.Verify("ADMIN", "pw")
	if ok {
		t.Fatal("Verify(ADMIN, pw) = true after rejected Register, want false")
	}
}

func TestSeedAdminIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.SeedAdmin("secret"); err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	ok, _ := s.Verify("ADMIN", "secret")
	if !ok {
		t.Fatal("Verify(ADMIN, secret) = false, want true")
	}
	// Re-seeding with a different password must not overwrite the existing row.
	if err := s.SeedAdmin("different"); err != nil {
		t.Fatalf("second SeedAdmin: %v", err)
	}
	ok, _ = s.Verify("ADMIN", "secret")
	if !ok {
		t.Fatal("ADMIN password changed on second SeedAdmin call")
	}
}
