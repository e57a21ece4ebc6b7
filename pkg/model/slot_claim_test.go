package model

import (
	"testing"
	"time"
)

func TestSlotCellKeysCoversInterval(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	keys := SlotCellKeys(start, end, 30)
	if len(keys) != 2 {
		t.Fatalf("expected 2 cells for a 60-minute interval, got %d", len(keys))
	}
	if keys[0] != "2026-03-01T10:00:00Z" || keys[1] != "2026-03-01T10:30:00Z" {
		t.Errorf("unexpected cell keys: %v", keys)
	}
}

func TestSlotCellKeysUnalignedStart(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 10, 45, 0, 0, time.UTC)

	keys := SlotCellKeys(start, end, 30)
	// An unaligned 30-minute interval straddles two grid cells.
	if len(keys) != 2 {
		t.Fatalf("expected 2 cells, got %d: %v", len(keys), keys)
	}
	if keys[0] != "2026-03-01T10:00:00Z" || keys[1] != "2026-03-01T10:30:00Z" {
		t.Errorf("unexpected cell keys: %v", keys)
	}
}

func TestOverlappingIntervalsShareACell(t *testing.T) {
	a1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a2 := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	b1 := time.Date(2026, 3, 1, 10, 45, 0, 0, time.UTC)
	b2 := time.Date(2026, 3, 1, 11, 45, 0, 0, time.UTC)

	if !Overlaps(a1, a2, b1, b2) {
		t.Fatal("intervals should overlap")
	}

	cellsA := SlotCellKeys(a1, a2, 30)
	cellsB := SlotCellKeys(b1, b2, 30)

	shared := false
	for _, a := range cellsA {
		for _, b := range cellsB {
			if a == b {
				shared = true
			}
		}
	}
	if !shared {
		t.Errorf("overlapping intervals must share a cell: %v vs %v", cellsA, cellsB)
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Back-to-back intervals do not overlap.
	if Overlaps(t1, t2, t2, t3) {
		t.Error("adjacent intervals must not overlap")
	}
	if !Overlaps(t1, t3, t2, t3) {
		t.Error("contained interval must overlap")
	}
}

func TestIsActive(t *testing.T) {
	cases := []struct {
		status string
		active bool
	}{
		{StatusPendingApproval, true},
		{StatusConfirmed, true},
		{StatusCancelled, false},
		{StatusRejected, false},
	}

	for _, tc := range cases {
		appt := &Appointment{Status: tc.status}
		if appt.IsActive() != tc.active {
			t.Errorf("status %q: expected active=%v", tc.status, tc.active)
		}
	}
}
