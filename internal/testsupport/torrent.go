package testsupport

import (
	"testing"

	"github.com/anacrolix/torrent/bencode"
)

// TorrentPayload returns a structurally valid single-file torrent named name.
func TorrentPayload(t testing.TB, name string) []byte {
	t.Helper()
	data, err := bencode.Marshal(map[string]any{
		"announce":      "https://tracker.example.test/announce.php",
		"creation date": 1327049827,
		"info": map[string]any{
			"length":       123456789,
			"name":         name,
			"piece length": 262144,
			"pieces":       "01234567890123456789",
		},
	})
	if err != nil {
		t.Fatalf("marshal torrent: %v", err)
	}
	return data
}
