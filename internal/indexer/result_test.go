package indexer

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func decodeRows(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var rows []map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	return rows
}

func TestNormalizeResultsCoercesTrackerFields(t *testing.T) {
	rows := decodeRows(t, `[
		{"id": 1234, "title": "The Hobbit", "author_info": "{\"12\":\"J.R.R. Tolkien\"}",
		 "narrator_info": "{\"7\":\"Andy Serkis\"}", "size": "987654", "seeders": "12",
		 "leechers": 3, "added": "2023-05-01 10:20:30", "free": "1", "filetype": "m4b",
		 "lang_code": "ENG", "language": "english", "dl": "abc123"},
		{"title": "missing id"},
		{"tid": "99", "seeders": 2.0, "vip": 1, "added": 1700000000}
	]`)

	results := normalizeResults(rows, "fallback")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	first := results[0]
	if first.ID != "1234" || first.Title != "The Hobbit" {
		t.Fatalf("unexpected identity %+v", first)
	}
	if len(first.Authors) != 1 || first.Authors[0] != "J.R.R. Tolkien" {
		t.Fatalf("unexpected authors %v", first.Authors)
	}
	if len(first.Narrators) != 1 || first.Narrators[0] != "Andy Serkis" {
		t.Fatalf("unexpected narrators %v", first.Narrators)
	}
	if first.Size != 987654 || first.Seeders != 12 || first.Leechers != 3 {
		t.Fatalf("unexpected counters %+v", first)
	}
	if !first.Freeleech() {
		t.Fatalf("expected freeleech flag, got %v", first.Flags)
	}
	if first.FileType != "M4B" || first.Language != "ENGLISH" {
		t.Fatalf("unexpected file type/language %q %q", first.FileType, first.Language)
	}
	if want := time.Date(2023, 5, 1, 10, 20, 30, 0, time.UTC); !first.PublishedAt.Equal(want) {
		t.Fatalf("unexpected published time %v", first.PublishedAt)
	}
	if first.Ref().String() != "1234:abc123" {
		t.Fatalf("unexpected ref %q", first.Ref().String())
	}

	second := results[1]
	if second.ID != "99" || second.Title != "fallback" || second.Seeders != 2 {
		t.Fatalf("unexpected second result %+v", second)
	}
	if second.Freeleech() || len(second.Flags) != 1 || second.Flags[0] != "vip" {
		t.Fatalf("unexpected flags %v", second.Flags)
	}
	if second.PublishedAt.Unix() != 1700000000 {
		t.Fatalf("unexpected unix published time %v", second.PublishedAt)
	}
}

func TestParseDateUnparseableIsZero(t *testing.T) {
	for _, value := range []any{"yesterday", "", nil, true} {
		if got := parseDate(value); !got.IsZero() {
			t.Fatalf("expected zero time for %v, got %v", value, got)
		}
	}
}

func TestParsePeopleShapes(t *testing.T) {
	cases := []struct {
		in   any
		want []string
	}{
		{[]any{"A", " ", "B"}, []string{"A", "B"}},
		{map[string]any{"2": "Second", "1": "First"}, []string{"First", "Second"}},
		{`["X","Y"]`, []string{"X", "Y"}},
		{"Plain Name", []string{"Plain Name"}},
		{nil, nil},
	}
	for _, tc := range cases {
		got := parsePeople(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("parsePeople(%v) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("parsePeople(%v) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}

func TestRankPrefersSeedersThenSize(t *testing.T) {
	results := []Result{
		{ID: "a", Seeders: 5, Size: 300},
		{ID: "b", Seeders: 9, Size: 900},
		{ID: "c", Seeders: 5, Size: 100},
	}
	ranked := Rank(results)
	order := []string{ranked[0].ID, ranked[1].ID, ranked[2].ID}
	if order[0] != "b" || order[1] != "c" || order[2] != "a" {
		t.Fatalf("unexpected order %v", order)
	}
	if results[0].ID != "a" {
		t.Fatal("Rank must not reorder its input")
	}
	if _, ok := Best(nil); ok {
		t.Fatal("expected no best result for empty input")
	}
}

func TestBestForSkipsOtherBooks(t *testing.T) {
	results := []Result{
		{ID: "a", Title: "Dune: Deluxe Edition", Seeders: 90},
		{ID: "b", Title: "The Left Hand of Darkness", Seeders: 50},
		{ID: "c", Title: "Dune (Unabridged)", Seeders: 10},
	}
	best, ok := BestFor(results, "Dune")
	if !ok || best.ID != "a" {
		t.Fatalf("expected highest-seeded matching result, got %+v %v", best, ok)
	}
	if _, ok := BestFor(results[1:2], "Dune"); ok {
		t.Fatal("expected unrelated title to be rejected")
	}
	if best, ok := BestFor(results, ""); !ok || best.ID != "a" {
		t.Fatalf("expected empty title to accept every result, got %+v", best)
	}
	if matched := MatchTitle(results, "Dune"); len(matched) != 2 {
		t.Fatalf("expected two matches, got %d", len(matched))
	}
}

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("42:deadbeef")
	if err != nil || ref.ID != "42" || ref.DownloadHash != "deadbeef" {
		t.Fatalf("unexpected ref %+v %v", ref, err)
	}
	ref, err = ParseRef("42")
	if err != nil || ref.ID != "42" || ref.DownloadHash != "" {
		t.Fatalf("unexpected bare ref %+v %v", ref, err)
	}
	if _, err := ParseRef(":hash"); err == nil {
		t.Fatal("expected error for missing id")
	}
}
