package postprocess

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxSegmentBytes = 180

var (
	audioExtensions = map[string]bool{
		".mp3": true, ".m4b": true, ".m4a": true, ".flac": true,
		".aac": true, ".ogg": true, ".wav": true, ".opus": true,
	}
	// Ordered by preference when a download carries several formats.
	ebookExtensions = []string{".epub", ".azw3", ".mobi", ".pdf", ".cbz"}
	coverNames      = []string{"cover.jpg", "cover.jpeg", "cover.png", "folder.jpg", "folder.png"}
	segmentReplacer = strings.NewReplacer(
		"/", "-", "\\", "-", ":", " -", "*", "", "?", "", "\"", "'", "<", "", ">", "", "|", "-",
	)
)

// SanitizeSegment converts a title or author into a single safe path
// segment: NFC-normalized, without separators or control characters.
func SanitizeSegment(raw string) string {
	s := norm.NFC.String(raw)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
	s = segmentReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " .")
	if len(s) > maxSegmentBytes {
		cut := maxSegmentBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], " .")
	}
	if s == "" {
		return "Unknown"
	}
	return s
}

// unsafeName reports whether a filename would break the concat manifest or
// smuggle extra lines into it.
func unsafeName(name string) bool {
	return strings.ContainsAny(name, "\n\r\x00'")
}

func isAudio(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

func ebookRank(path string) int {
	ext := strings.ToLower(filepath.Ext(path))
	for i, candidate := range ebookExtensions {
		if ext == candidate {
			return i
		}
	}
	return -1
}

// naturalLess orders "Part 2" before "Part 10".
func naturalLess(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	for a != "" && b != "" {
		ra, rb := rune(a[0]), rune(b[0])
		if isDigit(ra) && isDigit(rb) {
			na, restA := leadingDigits(a)
			nb, restB := leadingDigits(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			a, b = restA, restB
			continue
		}
		if ra != rb {
			return ra < rb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func leadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(rune(s[i])) {
		i++
	}
	return s[:i], s[i:]
}
