package indexer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"shelfarr/internal/textutil"
)

// Result is one normalized search hit.
type Result struct {
	ID           string
	Title        string
	Authors      []string
	Narrators    []string
	Size         int64
	Seeders      int
	Leechers     int
	PublishedAt  time.Time
	Flags        []string
	FileType     string
	Language     string
	DownloadHash string
}

// Freeleech reports whether downloading the result does not count against ratio.
func (r Result) Freeleech() bool {
	for _, flag := range r.Flags {
		if flag == "freeleech" {
			return true
		}
	}
	return false
}

// Ref returns the persisted reference used to fetch the result later.
func (r Result) Ref() Ref {
	return Ref{ID: r.ID, DownloadHash: r.DownloadHash}
}

// Ref identifies a torrent on the tracker: its numeric id plus the optional
// direct-download hash.
type Ref struct {
	ID           string
	DownloadHash string
}

// String encodes the ref as "id" or "id:hash".
func (r Ref) String() string {
	if r.DownloadHash == "" {
		return r.ID
	}
	return r.ID + ":" + r.DownloadHash
}

// ParseRef decodes a ref produced by Ref.String.
func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, fmt.Errorf("empty indexer ref")
	}
	id, hash, _ := strings.Cut(raw, ":")
	id = strings.TrimSpace(id)
	if id == "" {
		return Ref{}, fmt.Errorf("indexer ref %q has no torrent id", raw)
	}
	return Ref{ID: id, DownloadHash: strings.TrimSpace(hash)}, nil
}

// Rank orders results best first: most seeders, then smallest size.
func Rank(results []Result) []Result {
	ranked := make([]Result, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Seeders != ranked[j].Seeders {
			return ranked[i].Seeders > ranked[j].Seeders
		}
		return ranked[i].Size < ranked[j].Size
	})
	return ranked
}

// Best returns the top-ranked result.
func Best(results []Result) (Result, bool) {
	if len(results) == 0 {
		return Result{}, false
	}
	return Rank(results)[0], true
}

// MinTitleSimilarity is the score below which a hit is taken to be a different book.
const MinTitleSimilarity = 0.35

// BestFor returns the top-ranked result whose title resembles title. A title
// without usable tokens matches every result.
func BestFor(results []Result, title string) (Result, bool) {
	return Best(MatchTitle(results, title))
}

// MatchTitle keeps the results whose title scores at least MinTitleSimilarity
// against title, preserving order.
func MatchTitle(results []Result, title string) []Result {
	if textutil.NewFingerprint(title) == nil {
		return results
	}
	matched := make([]Result, 0, len(results))
	for _, r := range results {
		if score, ok := textutil.TitleSimilarity(title, r.Title); ok && score >= MinTitleSimilarity {
			matched = append(matched, r)
		}
	}
	return matched
}

var (
	idKeys        = []string{"id", "tid", "tor_id", "torrent_id"}
	titleKeys     = []string{"title", "name", "torTitle", "torname", "rawName", "book_title", "torrent_name"}
	sizeKeys      = []string{"size", "size_bytes", "bytes", "filesize", "torrent_size"}
	seederKeys    = []string{"seeders", "seed", "seeders_total", "leech_seeders"}
	leecherKeys   = []string{"leechers", "leeches", "leech", "leechers_total"}
	dlKeys        = []string{"dl", "dl_hash", "torrent_hash", "hash"}
	languageKeys  = []string{"language", "lang", "lang_name", "language_name"}
	fileTypeKeys  = []string{"filetype", "file_type", "torFileType", "format", "container"}
	publishedKeys = []string{"added", "timestamp"}
)

func normalizeResults(rows []map[string]any, fallbackTitle string) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		result, ok := normalizeResult(row, fallbackTitle)
		if ok {
			results = append(results, result)
		}
	}
	return results
}

func normalizeResult(row map[string]any, fallbackTitle string) (Result, bool) {
	id := firstScalar(row, idKeys)
	if id == "" {
		return Result{}, false
	}
	title := firstString(row, titleKeys)
	if title == "" {
		title = fallbackTitle
	}
	return Result{
		ID:           id,
		Title:        title,
		Authors:      parsePeople(row["author_info"]),
		Narrators:    parsePeople(row["narrator_info"]),
		Size:         firstInt(row, sizeKeys),
		Seeders:      int(firstInt(row, seederKeys)),
		Leechers:     int(firstInt(row, leecherKeys)),
		PublishedAt:  parseDate(firstPresent(row, publishedKeys)),
		Flags:        parseFlags(row),
		FileType:     strings.ToUpper(firstString(row, fileTypeKeys)),
		Language:     strings.ToUpper(firstString(row, languageKeys)),
		DownloadHash: firstScalar(row, dlKeys),
	}, true
}

func firstPresent(row map[string]any, keys []string) any {
	for _, key := range keys {
		if value, ok := row[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func firstString(row map[string]any, keys []string) string {
	for _, key := range keys {
		if value, ok := row[key].(string); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// firstScalar accepts strings and JSON numbers.
func firstScalar(row map[string]any, keys []string) string {
	for _, key := range keys {
		if s := scalarString(row[key]); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(row map[string]any, keys []string) int64 {
	for _, key := range keys {
		if value, ok := row[key]; ok && value != nil {
			return coerceInt(value)
		}
	}
	return 0
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool, nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func coerceInt(value any) int64 {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case json.Number:
		return v.String() == "1"
	case float64:
		return v == 1
	case string:
		return strings.TrimSpace(v) == "1"
	default:
		return false
	}
}

func parseFlags(row map[string]any) []string {
	set := map[string]struct{}{}
	if truthy(row["personal_freeleech"]) {
		set["personal_freeleech"] = struct{}{}
		set["freeleech"] = struct{}{}
	}
	if truthy(row["free"]) {
		set["free"] = struct{}{}
		set["freeleech"] = struct{}{}
	}
	if truthy(row["fl_vip"]) {
		set["fl_vip"] = struct{}{}
		set["freeleech"] = struct{}{}
	}
	if truthy(row["vip"]) {
		set["vip"] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	flags := make([]string, 0, len(set))
	for flag := range set {
		flags = append(flags, flag)
	}
	sort.Strings(flags)
	return flags
}

// parsePeople accepts a list, an id->name map, or either of those encoded as
// a JSON string. A plain non-JSON string is a single name.
func parsePeople(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		var out []string
		for _, item := range v {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var out []string
		for _, key := range keys {
			if s := scalarString(v[key]); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			switch decoded.(type) {
			case []any, map[string]any:
				return parsePeople(decoded)
			}
		}
		return []string{trimmed}
	default:
		return nil
	}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// parseDate returns the zero time for anything it cannot interpret.
func parseDate(value any) time.Time {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return time.Unix(n, 0).UTC()
		}
	case float64:
		if v > 0 {
			return time.Unix(int64(v), 0).UTC()
		}
	case string:
		trimmed := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed.UTC()
			}
		}
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil && n > 0 {
			return time.Unix(n, 0).UTC()
		}
	}
	return time.Time{}
}
