package record

import (
	"reflect"
	"testing"
)

func TestNew_NormalizesFields(t *testing.T) {
	r := New("au", "  Relay   For Life Perth ", " 3 May 2025 ", "2025-05-03",
		[]string{"Info@Relay.org.au.", "info@relay.org.au", "not-an-email", " b@x.com;"},
		"https://example.org/event/perth#register")

	if r.Country != "AU" {
		t.Errorf("Expected country AU, got %q", r.Country)
	}
	if r.EventName != "Relay For Life Perth" {
		t.Errorf("Expected collapsed name, got %q", r.EventName)
	}
	if r.SourceURL != "https://example.org/event/perth" {
		t.Errorf("Expected fragment stripped, got %q", r.SourceURL)
	}
	want := []string{"b@x.com", "info@relay.org.au"}
	if !reflect.DeepEqual(r.Emails, want) {
		t.Errorf("Expected emails %v, got %v", want, r.Emails)
	}
}

func TestNew_UnknownName(t *testing.T) {
	r := New("UK", "   ", "", "", nil, "https://x.test/a")
	if r.EventName != UnknownName {
		t.Errorf("Expected %q, got %q", UnknownName, r.EventName)
	}
	if r.Emails == nil {
		t.Error("Expected non-nil empty emails slice")
	}
	if !r.IsEmpty() {
		t.Error("Expected record without name, date or emails to be empty")
	}
}

func TestRow(t *testing.T) {
	r := New("US", "Relay Boston", "May 3", "", []string{"a@b.com", "c@d.com"}, "https://x.test/1")
	want := []string{"US", "Relay Boston", "May 3", "a@b.com; c@d.com", "https://x.test/1"}
	if got := r.Row(); !reflect.DeepEqual(got, want) {
		t.Errorf("Row() = %v, want %v", got, want)
	}

	r = New("US", "Relay Boston", "May 3 2025", "2025-05-03", nil, "https://x.test/1")
	if got := r.DisplayDate(); got != "2025-05-03" {
		t.Errorf("Expected ISO date preferred, got %q", got)
	}
}

func TestSuppress_DropsEmptyRecords(t *testing.T) {
	in := []Record{
		New("AU", "", "", "", nil, "https://x.test/empty"),
		New("AU", "", "TBD", "", nil, "https://x.test/tbd"),
		New("AU", "", "", "", []string{"a@b.com"}, "https://x.test/email"),
	}
	out := Suppress(in)
	if len(out) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(out))
	}
	for _, r := range out {
		if r.SourceURL == "https://x.test/empty" {
			t.Error("Empty record should have been suppressed")
		}
	}
}

func TestDedup_LaterWins(t *testing.T) {
	in := []Record{
		New("CA", "First", "", "", nil, "https://x.test/1"),
		New("CA", "Other", "", "", nil, "https://x.test/2"),
		New("CA", "Second", "", "", nil, "https://x.test/1#frag"),
		New("US", "Same URL other country", "", "", nil, "https://x.test/1"),
	}
	out := Dedup(in)
	if len(out) != 3 {
		t.Fatalf("Expected 3 records after dedup, got %d", len(out))
	}
	if out[0].EventName != "Second" {
		t.Errorf("Expected later record to win, got %q", out[0].EventName)
	}
}

func TestFinalize_SortsByCountryThenName(t *testing.T) {
	in := []Record{
		New("US", "zeta", "", "", nil, "https://x.test/3"),
		New("AU", "Beta", "", "", nil, "https://x.test/2"),
		New("AU", "alpha", "", "", nil, "https://x.test/1"),
		New("CA", "", "", "", nil, "https://x.test/4"),
	}
	out := Finalize(in)
	var names []string
	for _, r := range out {
		names = append(names, r.Country+":"+r.EventName)
	}
	want := []string{"AU:alpha", "AU:Beta", "US:zeta"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Finalize order = %v, want %v", names, want)
	}
}
