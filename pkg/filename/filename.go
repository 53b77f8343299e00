// Package filename derives safe on-disk filenames from download responses.
package filename

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	errs "collectordl/pkg/errors"
)

// DefaultName is used when the response does not name the file
const DefaultName = "beatmapset.osz"

var (
	// filename*=UTF-8''My%20Song.osz
	extendedPattern = regexp.MustCompile(`(?i)filename\*\s*=\s*(?:[\w!#$&+.^` + "`" + `{}~-]+'[\w-]*')?"?([^";]+)"?`)
	// filename="My Song.osz" or filename=song.osz
	plainPattern = regexp.MustCompile(`(?i)filename\s*=\s*(?:"([^"]*)"|([^;\s]+))`)

	forbiddenPattern  = regexp.MustCompile(`[/<>:"\\|?*\x00-\x1f\x7f]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Resolve returns a sanitized filename for a response.
// A missing or unparseable header yields DefaultName; a header that names a
// file which cannot be decoded or sanitizes to nothing is an error.
func Resolve(header http.Header) (string, error) {
	disposition := lookup(header, "Content-Disposition")
	if disposition == "" {
		return DefaultName, nil
	}

	raw, ok := extract(disposition)
	if !ok {
		return DefaultName, nil
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", errs.Filename(err, raw)
	}

	name := Sanitize(decoded)
	if name == "" || name == "." || name == ".." {
		return "", errs.Filename(nil, raw)
	}
	return name, nil
}

// Sanitize removes characters that are not allowed in a path segment and
// collapses whitespace runs to a single space.
func Sanitize(name string) string {
	name = forbiddenPattern.ReplaceAllString(name, "")
	name = whitespacePattern.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

func extract(disposition string) (string, bool) {
	if m := extendedPattern.FindStringSubmatch(disposition); m != nil && m[1] != "" {
		return m[1], true
	}
	m := plainPattern.FindStringSubmatch(disposition)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	if m[2] != "" {
		return m[2], true
	}
	return "", false
}

// lookup finds a header regardless of how the map key was cased
func lookup(header http.Header, key string) string {
	if v := header.Get(key); v != "" {
		return v
	}
	for k, values := range header {
		if strings.EqualFold(k, key) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
