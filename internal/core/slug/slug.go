// Package slug derives canonical, URL-safe identifiers from display names.
// Normalization is deterministic so concurrent writers always derive the
// same key for the same input.
package slug

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/santiago-gil/tools-tracker/internal/core/domain"
)

// Separator joins the tool and version components of a slug. Normalized
// components can never contain it, so splitting on the first occurrence is
// unambiguous.
const Separator = "--"

const (
	minInputLen = 1
	maxInputLen = 100
	minSlugLen  = 3
	maxSlugLen  = 200
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// stripMarks folds diacritics so "Café" normalizes to "cafe".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, folds to ASCII, collapses runs of non-alphanumeric
// characters to single hyphens and trims leading/trailing hyphens. It fails
// only when nothing alphanumeric survives.
func Normalize(text string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	s = nonAlnum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "", &domain.EmptyNormalizationError{Input: text}
	}
	return s, nil
}

// Build validates both inputs, normalizes them independently and joins them
// with Separator. The combined slug is re-checked for shape even though the
// normalizer cannot produce a malformed one.
func Build(toolName, versionName string) (string, error) {
	toolName = strings.TrimSpace(toolName)
	versionName = strings.TrimSpace(versionName)

	if n := utf8.RuneCountInString(toolName); n < minInputLen || n > maxInputLen {
		return "", &domain.ValidationError{Field: "toolName", Reason: "must be 1-100 characters"}
	}
	if n := utf8.RuneCountInString(versionName); n < minInputLen || n > maxInputLen {
		return "", &domain.ValidationError{Field: "versionName", Reason: "must be 1-100 characters"}
	}

	toolPart, err := Normalize(toolName)
	if err != nil {
		return "", err
	}
	versionPart, err := Normalize(versionName)
	if err != nil {
		return "", err
	}

	s := toolPart + Separator + versionPart
	if err := validate(s); err != nil {
		return "", err
	}
	return s, nil
}

func validate(s string) error {
	if len(s) < minSlugLen || len(s) > maxSlugLen {
		return &domain.ValidationError{Field: "slug", Reason: "must be 3-200 characters"}
	}
	if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return &domain.ValidationError{Field: "slug", Reason: "must not start or end with a hyphen"}
	}
	tool, version, found := strings.Cut(s, Separator)
	if !found || strings.Contains(version, Separator) {
		return &domain.ValidationError{Field: "slug", Reason: "must contain exactly one separator"}
	}
	// Counting separator occurrences is not enough: "a---b" holds one
	// non-overlapping "--" yet leaves a stray hyphen glued to it.
	for _, part := range [2]string{tool, version} {
		if part == "" || strings.HasPrefix(part, "-") || strings.HasSuffix(part, "-") {
			return &domain.ValidationError{Field: "slug", Reason: "components must not be empty or edged with hyphens"}
		}
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return &domain.ValidationError{Field: "slug", Reason: "must contain only lowercase alphanumerics and hyphens"}
		}
	}
	return nil
}

// Parse splits a slug back into its normalized components. Malformed input
// yields ok=false rather than an error; this path backs best-effort lookups.
func Parse(s string) (toolName, versionName string, ok bool) {
	toolName, versionName, found := strings.Cut(s, Separator)
	if !found || toolName == "" || versionName == "" {
		return "", "", false
	}
	return toolName, versionName, true
}
