package downloader

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/sha3"
)

// MaxFilenameLength is the maximum file name length in characters (runes).
const MaxFilenameLength = 200

// CollisionPolicy decides how file names are derived when distinct image
// addresses share the same last path segment.
type CollisionPolicy int

const (
	// CollisionSkip uses the last path segment as is. The first image written
	// under a name wins; later addresses with that name are AlreadyPresent.
	CollisionSkip CollisionPolicy = iota

	// CollisionHash appends the first 8 hex digits of the SHA3-256 of the full
	// address before the extension, so distinct addresses get distinct files.
	CollisionHash
)

// String returns the flag value for the policy.
func (p CollisionPolicy) String() string {
	switch p {
	case CollisionSkip:
		return "skip"
	case CollisionHash:
		return "hash"
	default:
		return "unknown"
	}
}

// ParseCollisionPolicy converts a flag value into a CollisionPolicy.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return CollisionSkip, nil
	case "hash":
		return CollisionHash, nil
	default:
		return CollisionSkip, fmt.Errorf("unknown collision policy %q", s)
	}
}

// SanitizeFilename removes the characters <>:"/\|?*, replaces spaces with
// underscores and truncates the result to MaxFilenameLength characters.
// It is idempotent.
func SanitizeFilename(name string) string {
	return truncateRunes(stripUnsafe(name), MaxFilenameLength)
}

func stripUnsafe(name string) string {
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			continue
		case ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DeriveFilename returns the local file name for an image address, or ""
// when none can be derived (the path ends in "/", or nothing usable is left
// after sanitizing). The last path segment is used as written in the address;
// percent escapes are not decoded, so "a%2Fb.jpg" stays one segment.
func DeriveFilename(rawURL string, policy CollisionPolicy) string {
	if _, err := url.Parse(rawURL); err != nil {
		return ""
	}

	p := rawPath(rawURL)
	segment := p[strings.LastIndex(p, "/")+1:]

	name := SanitizeFilename(segment)
	if name == "" || name == "." || name == ".." {
		return ""
	}

	if policy == CollisionHash {
		// The digest goes in before truncation so the extension survives.
		return withURLDigest(stripUnsafe(segment), rawURL)
	}
	return name
}

// rawPath returns the path of rawURL without decoding it, with any query
// and fragment removed.
func rawPath(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+len("://"):]
		slash := strings.IndexByte(p, '/')
		if slash < 0 {
			return ""
		}
		p = p[slash:]
	}
	return p
}

// withURLDigest inserts "_" and an 8-hex digest of rawURL before the
// extension, trimming the stem so the result stays within MaxFilenameLength.
func withURLDigest(name, rawURL string) string {
	sum := sha3.Sum256([]byte(rawURL))
	suffix := "_" + hex.EncodeToString(sum[:4])

	ext := path.Ext(name)
	if utf8.RuneCountInString(ext) > MaxFilenameLength/2 {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	room := MaxFilenameLength - utf8.RuneCountInString(suffix) - utf8.RuneCountInString(ext)
	return truncateRunes(stem, room) + suffix + ext
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
