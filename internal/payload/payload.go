package payload

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"

	"shelfarr/internal/services"
)

// MinSize is the smallest byte count accepted as a torrent file. Error pages
// and empty bodies returned with a 200 status fall below it.
const MinSize = 64

// Validate checks that data is a structurally sound bencoded torrent: a
// dictionary carrying an info dictionary and a tracker announce key.
func Validate(data []byte) error {
	if len(data) < MinSize {
		return invalid(fmt.Sprintf("payload too small (%d bytes, minimum %d)", len(data), MinSize), nil)
	}
	if data[0] != 'd' {
		return invalid(fmt.Sprintf("payload is not a bencoded dictionary (starts with %q)", preview(data)), nil)
	}

	var top map[string]interface{}
	if err := bencode.Unmarshal(data, &top); err != nil {
		return invalid("payload is not valid bencode", err)
	}

	info, ok := top["info"]
	if !ok {
		return invalid("missing required key \"info\"", nil)
	}
	infoDict, ok := info.(map[string]interface{})
	if !ok {
		return invalid("key \"info\" is not a dictionary", nil)
	}
	if name, ok := infoDict["name"].(string); !ok || strings.TrimSpace(name) == "" {
		return invalid("info dictionary missing \"name\"", nil)
	}
	if _, ok := infoDict["piece length"]; !ok {
		return invalid("info dictionary missing \"piece length\"", nil)
	}

	_, hasAnnounce := top["announce"]
	_, hasAnnounceList := top["announce-list"]
	if !hasAnnounce && !hasAnnounceList {
		return invalid("missing required key \"announce\"", nil)
	}
	return nil
}

// InfoHash validates data and returns the lowercase hex v1 info-hash.
func InfoHash(data []byte) (string, error) {
	if err := Validate(data); err != nil {
		return "", err
	}
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", invalid("decode metainfo", err)
	}
	return mi.HashInfoBytes().HexString(), nil
}

// Name returns the torrent's display name from its info dictionary.
func Name(data []byte) (string, error) {
	if err := Validate(data); err != nil {
		return "", err
	}
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", invalid("decode metainfo", err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return "", invalid("decode info dictionary", err)
	}
	return info.BestName(), nil
}

func invalid(message string, err error) error {
	return services.Wrap(services.ErrInvalidPayload, "payload", "validate", message, err)
}

func preview(data []byte) string {
	const limit = 16
	if len(data) > limit {
		data = data[:limit]
	}
	return string(data)
}
