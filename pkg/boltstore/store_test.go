package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestObjectRoundTrip(t *testing.T) {
	s := openTemp(t)

	obj := &gamedb.Object{
		DBRef:   3,
		Name:    "Bob",
		Flags:   [3]int{int(gamedb.TypePlayer), 0, 0},
		Pennies: 150,
	}
	obj.SetAttr(gamedb.AMoney, "150")
	if err := s.PutObject(obj); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := s.DB().Objects[3]
	if !ok {
		t.Fatal("object missing after reload")
	}
	if got.Name != "Bob" || got.Pennies != 150 {
		t.Errorf("got %q/%d, want Bob/150", got.Name, got.Pennies)
	}
	if v := got.GetAttr(gamedb.AMoney); v != "150" {
		t.Errorf("money attr = %q, want 150", v)
	}
}

func TestPlayerLookup(t *testing.T) {
	s := openTemp(t)

	obj := &gamedb.Object{
		DBRef: 7,
		Name:  "Wanda",
		Flags: [3]int{int(gamedb.TypePlayer), 0, 0},
	}
	if err := s.PutObject(obj); err != nil {
		t.Fatalf("put: %v", err)
	}

	if ref := s.LookupPlayer("wanda"); ref != 7 {
		t.Errorf("lookup = %d, want 7", ref)
	}
	if ref := s.LookupPlayer("nobody"); ref != gamedb.Nothing {
		t.Errorf("lookup = %d, want Nothing", ref)
	}
}
