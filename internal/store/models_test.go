package store

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusUploading, StatusProcessing, true},
		{StatusUploading, StatusFailed, true},
		{StatusUploading, StatusProcessed, false},
		{StatusProcessing, StatusProcessed, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusUploading, false},
		{StatusProcessed, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range AllStatuses() {
		want := s == StatusProcessed || s == StatusFailed
		if s.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v", s, s.IsTerminal())
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus("processing"); !ok || s != StatusProcessing {
		t.Fatalf("ParseStatus(processing) = %q, %v", s, ok)
	}
	if _, ok := ParseStatus("pending"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
