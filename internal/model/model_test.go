package model

import "testing"

func TestLookupLine(t *testing.T) {
	table := LineTable{{0, 10}, {7, 11}, {15, 12}}

	cases := []struct {
		bci      int64
		wantLine int32
		wantOK   bool
	}{
		{0, 10, true},
		{6, 10, true},
		{7, 11, true},
		{14, 11, true},
		{15, 12, true},
		{1000, 12, true},
	}
	for _, c := range cases {
		e, ok := table.LookupLine(c.bci)
		if ok != c.wantOK {
			t.Fatalf("bci=%d: got ok=%v, want %v", c.bci, ok, c.wantOK)
		}
		if ok && e.LineNumber != c.wantLine {
			t.Fatalf("bci=%d: got line=%d, want %d", c.bci, e.LineNumber, c.wantLine)
		}
	}
}

func TestLookupLineEmptyTable(t *testing.T) {
	var table LineTable
	if _, ok := table.LookupLine(5); ok {
		t.Fatal("expected no match for empty table")
	}
}

func TestLookupLineAllAfter(t *testing.T) {
	table := LineTable{{10, 1}, {20, 2}}
	if _, ok := table.LookupLine(5); ok {
		t.Fatal("expected no match when every entry starts after bci")
	}
}
