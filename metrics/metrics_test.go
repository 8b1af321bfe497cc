package metrics

import "testing"

func TestDefaultClampsSmallFilesystem(t *testing.T) {
	m := Default(100 * mib)
	if m.MaxUse != 10*mib {
		t.Fatalf("MaxUse = %d, want %d", m.MaxUse, 10*mib)
	}
	if m.MinUse > m.MaxUse {
		t.Fatalf("MinUse %d exceeds MaxUse %d", m.MinUse, m.MaxUse)
	}
	if m.MaxSize < 4*mib {
		t.Fatalf("MaxSize %d below absolute minimum", m.MaxSize)
	}
	if m.NMaxFiles != 100 {
		t.Fatalf("NMaxFiles = %d, want 100", m.NMaxFiles)
	}
}

func TestDefaultUnknownFilesystemSize(t *testing.T) {
	m := Default(0)
	if m.KeepFree != mib {
		t.Fatalf("KeepFree = %d, want %d when fs size unknown", m.KeepFree, mib)
	}
}

func TestDefaultLargeFilesystemCapsAtAbsoluteMaximums(t *testing.T) {
	m := Default(10 * 1024 * gib)
	if m.MaxUse != 4*gib {
		t.Fatalf("MaxUse = %d, want capped at 4 GiB", m.MaxUse)
	}
	if m.MaxSize != 128*mib {
		t.Fatalf("MaxSize = %d, want capped at 128 MiB", m.MaxSize)
	}
	if m.KeepFree != 4*gib {
		t.Fatalf("KeepFree = %d, want capped at 4 GiB", m.KeepFree)
	}
}
