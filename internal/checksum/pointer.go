package checksum

import (
	"bufio"
	"bytes"
	"net/url"
	"strings"
)

// pointerPrefix marks the authoritative line of a pointer descriptor,
// e.g. "oid sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855".
const pointerPrefix = "oid sha256:"

// PointerHash is the result of parsing a pointer descriptor. Absent means no
// authoritative line was found; an absent hash never compares equal to any
// computed digest.
type PointerHash struct {
	Hex     string
	Present bool
}

// ParsePointer scans a pointer descriptor line by line and extracts the
// expected hash from the first line starting with the oid marker. The hash
// is normalized to lowercase.
func ParsePointer(data []byte) PointerHash {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, pointerPrefix) {
			continue
		}

		hex := strings.TrimSpace(strings.TrimPrefix(line, pointerPrefix))
		if hex == "" {
			continue
		}

		return PointerHash{Hex: strings.ToLower(hex), Present: true}
	}

	return PointerHash{}
}

// DerivePointerURL converts a content URL into its pointer descriptor URL.
// The hosting convention serves the raw pointer file when the "resolve"
// path segment is replaced with "raw"; any query string is stripped.
func DerivePointerURL(contentURL string) (string, error) {
	u, err := url.Parse(contentURL)
	if err != nil {
		return "", err
	}

	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if seg == "resolve" {
			segments[i] = "raw"
		}
	}
	u.Path = strings.Join(segments, "/")
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}
