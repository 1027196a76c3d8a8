package slug

import (
	"errors"
	"strings"
	"testing"

	"github.com/santiago-gil/tools-tracker/internal/core/domain"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Google Analytics", "google-analytics"},
		{"GA4", "ga4"},
		{"  Spaced  Out  ", "spaced-out"},
		{"Already-normal", "already-normal"},
		{"Weird___Chars!!", "weird-chars"},
		{"Café Münster", "cafe-munster"},
		{"--leading--trailing--", "leading-trailing"},
		{"Mixed.Dots/And\\Slashes", "mixed-dots-and-slashes"},
	}

	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if err != nil {
			t.Errorf("Normalize(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	first, err := Normalize("Google Analytics 4 (GA4)")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Normalize("Google Analytics 4 (GA4)")
		if err != nil {
			t.Fatalf("Normalize failed: %v", err)
		}
		if again != first {
			t.Fatalf("Normalize not deterministic: %q vs %q", again, first)
		}
	}
}

func TestNormalize_EmptyResult(t *testing.T) {
	for _, in := range []string{"", "   ", "!!!", "---", "×÷"} {
		_, err := Normalize(in)
		var emptyErr *domain.EmptyNormalizationError
		if !errors.As(err, &emptyErr) {
			t.Errorf("Normalize(%q): expected EmptyNormalizationError, got %v", in, err)
		}
	}
}

func TestBuild(t *testing.T) {
	got, err := Build("Google Analytics", "GA4")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got != "google-analytics--ga4" {
		t.Errorf("Build = %q, want %q", got, "google-analytics--ga4")
	}
}

func TestBuild_InputLength(t *testing.T) {
	cases := []struct {
		tool, version string
	}{
		{"", "GA4"},
		{"   ", "GA4"},
		{"Google Analytics", ""},
		{strings.Repeat("x", 101), "GA4"},
		{"Google Analytics", strings.Repeat("x", 101)},
	}

	for _, tc := range cases {
		_, err := Build(tc.tool, tc.version)
		var valErr *domain.ValidationError
		if !errors.As(err, &valErr) {
			t.Errorf("Build(%q, %q): expected ValidationError, got %v", tc.tool, tc.version, err)
		}
	}
}

func TestBuild_EmptyAfterNormalization(t *testing.T) {
	_, err := Build("!!!", "GA4")
	var emptyErr *domain.EmptyNormalizationError
	if !errors.As(err, &emptyErr) {
		t.Errorf("expected EmptyNormalizationError, got %v", err)
	}
}

func TestBuild_LongInputsStillValid(t *testing.T) {
	// 100-char components produce a 202-char slug, over the 200 limit.
	_, err := Build(strings.Repeat("a", 100), strings.Repeat("b", 100))
	var valErr *domain.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError for oversized slug, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"Google Analytics", "GA4"},
		{"Hotjar", "Free Tier"},
		{"Adobe Analytics", "v2.1"},
		{"Café Tracker", "Münster Edition"},
	}

	for _, p := range pairs {
		s, err := Build(p[0], p[1])
		if err != nil {
			t.Fatalf("Build(%q, %q) failed: %v", p[0], p[1], err)
		}

		toolPart, versionPart, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) failed", s)
		}

		wantTool, _ := Normalize(p[0])
		wantVersion, _ := Normalize(p[1])
		if toolPart != wantTool || versionPart != wantVersion {
			t.Errorf("Parse(%q) = (%q, %q), want (%q, %q)", s, toolPart, versionPart, wantTool, wantVersion)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, in := range []string{"", "no-separator", "--ga4", "google-analytics--", "--"} {
		if _, _, ok := Parse(in); ok {
			t.Errorf("Parse(%q): expected ok=false", in)
		}
	}
}

func TestValidate_RejectsHyphensGluedToSeparator(t *testing.T) {
	cases := []string{
		"a---b",   // stray hyphen fused to the separator
		"a--b--c", // two separators
		"a---",    // empty version component
		"---b",    // empty tool component
		"-a--b",   // component edged with a hyphen
		"a--b-",
	}
	for _, s := range cases {
		if err := validate(s); err == nil {
			t.Errorf("validate(%q): expected error, got nil", s)
		}
	}

	if err := validate("a-b--c-d"); err != nil {
		t.Errorf("validate(%q): unexpected error: %v", "a-b--c-d", err)
	}
}
