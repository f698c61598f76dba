// Package attachment stores the files attached to mail and letter templates.
//
// Backends live in subpackages: local disk, S3 and an in-memory store for
// tests. The otel subpackage decorates any backend with spans and metrics.
// Paths returned by Save are opaque to callers and are what the mail and
// template records persist.
package attachment

import (
	"context"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Folders group stored files by owning record kind.
const (
	FolderIncoming  = "incoming"
	FolderOutgoing  = "outgoing"
	FolderTemplates = "templates"
)

// Store persists attachment bytes. Delete of a missing path succeeds; Open of
// a missing path returns sentinel.ErrNotFound.
type Store interface {
	Save(ctx context.Context, folder, filename string, content io.Reader) (string, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Upload is a file received with a create or update request.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// Empty reports whether no file, or a zero-length file, was sent.
func (u *Upload) Empty() bool {
	return u == nil || u.Content == nil || u.Size <= 0
}

const (
	timestampLayout  = "20060102_150405"
	fallbackFilename = "attachment"
	maxFilenameRunes = 120
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename reduces an uploaded filename to a safe ASCII base name:
// directory parts are dropped, accents are stripped, whitespace becomes "_"
// and anything outside [A-Za-z0-9_.-] is removed.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)

	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
		case unicode.IsSpace(r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	name = unsafeFilenameChars.ReplaceAllString(b.String(), "")
	name = strings.Trim(name, "._")
	if len(name) > maxFilenameRunes {
		name = name[len(name)-maxFilenameRunes:]
	}
	if name == "" {
		return fallbackFilename
	}
	return name
}

// ObjectName is the stored name for filename uploaded at now:
// YYYYMMDD_HHMMSS_<sanitized>.
func ObjectName(now time.Time, filename string) string {
	return now.Format(timestampLayout) + "_" + SanitizeFilename(filename)
}

// DisplayName recovers the uploaded base name from a stored path, for
// Content-Disposition on download.
func DisplayName(stored string) string {
	base := path.Base(strings.ReplaceAll(stored, `\`, "/"))
	if len(base) > len(timestampLayout)+1 && isTimestamp(base[:len(timestampLayout)]) && base[len(timestampLayout)] == '_' {
		return base[len(timestampLayout)+1:]
	}
	return base
}

func isTimestamp(s string) bool {
	_, err := time.Parse(timestampLayout, s)
	return err == nil
}
