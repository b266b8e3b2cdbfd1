package checkpoint

import "testing"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLastSyncedEmpty(t *testing.T) {
	s := openTestStore(t)
	height, ok, err := s.LastSynced(56)
	if err != nil {
		t.Fatalf("LastSynced: %v", err)
	}
	if ok || height != 0 {
		t.Fatalf("LastSynced = (%d, %v), want (0, false) on empty store", height, ok)
	}
}

func TestSetAndGet(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetLastSynced(56, 1_000_000); err != nil {
		t.Fatalf("SetLastSynced: %v", err)
	}
	height, ok, err := s.LastSynced(56)
	if err != nil {
		t.Fatalf("LastSynced: %v", err)
	}
	if !ok || height != 1_000_000 {
		t.Fatalf("LastSynced = (%d, %v), want (1000000, true)", height, ok)
	}
}

func TestChainsAreIndependent(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetLastSynced(56, 100); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastSynced(137, 200); err != nil {
		t.Fatal(err)
	}
	bsc, _, _ := s.LastSynced(56)
	polygon, _, _ := s.LastSynced(137)
	if bsc != 100 || polygon != 200 {
		t.Fatalf("heights = (%d, %d), want (100, 200)", bsc, polygon)
	}
}

func TestCheckpointOnlyAdvances(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetLastSynced(56, 500); err != nil {
		t.Fatal(err)
	}
	if err := s.SetLastSynced(56, 400); err != nil {
		t.Fatal(err)
	}
	height, _, err := s.LastSynced(56)
	if err != nil {
		t.Fatal(err)
	}
	if height != 500 {
		t.Fatalf("height = %d, want 500 (lower write ignored)", height)
	}
}
