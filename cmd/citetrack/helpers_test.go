package main

import (
	"testing"
	"time"

	"citetrack/internal/item"
)

func TestParseItemID(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := parseItemID(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseItemID(%q) = %d, want error", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("parseItemID(%q) = %d, %v", tc.in, got, err)
		}
	}
}

func TestStageLabel(t *testing.T) {
	if got := stageLabel(item.StageStoredIncomplete); got != "Stored Incomplete" {
		t.Fatalf("stageLabel = %q", got)
	}
	if got := stageLabel(item.StageProcessingZotero); got != "Processing Zotero" {
		t.Fatalf("stageLabel = %q", got)
	}
}

func TestLinkLabel(t *testing.T) {
	it := item.New("https://example.org/a")
	if got := linkLabel(it); got != "-" {
		t.Fatalf("unlinked label = %q", got)
	}
	it.LinkState = item.LinkLinked
	it.ExternalItemKey = "ABCD1234"
	if got := linkLabel(it); got != "ABCD1234" {
		t.Fatalf("linked label = %q", got)
	}
}

func TestFlagLabel(t *testing.T) {
	if got := flagLabel(item.IntentNone); got != "-" {
		t.Fatalf("none = %q", got)
	}
	if got := flagLabel(item.IntentArchived); got != "archived" {
		t.Fatalf("archived = %q", got)
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(time.Time{}); got != "-" {
		t.Fatalf("zero time = %q", got)
	}
	if got := formatTime(time.Now()); got == "-" || len(got) != len("2006-01-02 15:04:05") {
		t.Fatalf("formatted = %q", got)
	}
}
