package extract

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}
	return doc
}

func TestDecodeCFEmail(t *testing.T) {
	payload := EncodeCFEmail("info@relay.org", 0x42)
	got, err := DecodeCFEmail(payload)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "info@relay.org" {
		t.Errorf("Expected info@relay.org, got %q", got)
	}

	// key 0x00 leaves bytes untouched: "a" = 0x61
	if got, _ := DecodeCFEmail("0061"); got != "a" {
		t.Errorf("Expected \"a\", got %q", got)
	}
}

func TestDecodeCFEmail_Malformed(t *testing.T) {
	for _, in := range []string{"", "ab", "abc", "zz12", "12345"} {
		if _, err := DecodeCFEmail(in); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeCFEmail(%q) error = %v, want ErrMalformed", in, err)
		}
	}
}

func TestEmails(t *testing.T) {
	page := `<html><body>
		<a href="MAILTO:Events@Relay.org.au?subject=Hi">Email us</a>
		<a class="__cf_email__" data-cfemail="` + EncodeCFEmail("cf@relay.org", 0x5a) + `">[email&#160;protected]</a>
		<a href="/cdn-cgi/l/email-protection#` + EncodeCFEmail("href@relay.org", 0x13) + `">contact</a>
		<a href="/cdn-cgi/l/email-protection#zz">broken</a>
		<p>Write to jane [at] relay [dot] org for details.</p>
		<p>Or: support@example.com.</p>
		<script>var x = "hidden@script.com";</script>
	</body></html>`

	got := Emails(page)
	want := []string{"cf@relay.org", "events@relay.org.au", "href@relay.org", "jane@relay.org", "support@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Emails() = %v, want %v", got, want)
	}
}

func TestEmails_NoneFound(t *testing.T) {
	got := Emails(`<p>No contact details here.</p>`)
	if got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", got)
	}
}

func TestNextTextAfter(t *testing.T) {
	doc := mustDoc(t, `<div class="meta">
		<div><span><strong>Event date</strong></span></div>
		<div>   </div>
		<div><p>Saturday 3 May 2025</p></div>
	</div>`)

	if got := NextTextAfter(doc, "event date"); got != "Saturday 3 May 2025" {
		t.Errorf("Expected date text, got %q", got)
	}
	if got := NextTextAfter(doc, "Location"); got != "" {
		t.Errorf("Expected empty result for missing label, got %q", got)
	}
}

func TestAnchors(t *testing.T) {
	doc := mustDoc(t, `<a href="/event/perth#top">Perth</a>
		<a href="mailto:x@y.com">mail</a>
		<a href="https://other.org/e/1">Other</a>`)

	got := Anchors(doc, "https://www.relay.org.au/events")
	want := []string{"https://www.relay.org.au/event/perth", "https://other.org/e/1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Anchors() = %v, want %v", got, want)
	}
}

func TestCascade(t *testing.T) {
	strategies := []Strategy[string]{
		{Name: "empty", Run: func(string) Result { return NotFound() }},
		{Name: "bad", Run: func(string) Result { return Malformed() }},
		{Name: "upper", Run: func(s string) Result { return Found(strings.ToUpper(s)) }},
		{Name: "never", Run: func(string) Result { t.Error("Strategy after success must not run"); return NotFound() }},
	}

	r := Cascade("relay", strategies...)
	if !r.OK() || r.Value != "RELAY" || r.Strategy != "upper" {
		t.Errorf("Unexpected result %+v", r)
	}

	r = Cascade("relay", strategies[:2]...)
	if r.OK() || r.Reason != ReasonMalformed || r.Strategy != "bad" {
		t.Errorf("Expected last failure to be reported, got %+v", r)
	}
}
