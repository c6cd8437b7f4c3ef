package matching

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// versionSuffixes are stripped from a normalized title, in order, because
// they describe a release variant rather than a distinct song.
var versionSuffixes = []string{
	"original mix", "radio edit", "radio mix", "extended mix",
	"extended version", "club mix", "dub mix", "vip mix", "bootleg",
	"remastered", "remaster", "deluxe edition", "deluxe",
	"bonus track", "album version", "single version",
	"live version", "live", "acoustic version", "acoustic", "instrumental",
}

var (
	bracketedRe  = regexp.MustCompile(`[\(\[][^)\]]*[\)\]]`)
	yearRemixRe  = regexp.MustCompile(`\b(19|20)\d{2}\s*remaster(ed)?\b`)
	featRe       = regexp.MustCompile(`\b(feat\.?|ft\.?|featuring)\b.*$`)
	remixWordRe  = regexp.MustCompile(`(?i)\bremix\b`)
	keepCharsRe  = regexp.MustCompile(`[^\p{L}\p{N} ]`)
	keepASCIIRe  = regexp.MustCompile(`[^a-zA-Z0-9 ]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// normalizeTitle lower-cases, strips parenthesized/bracketed segments and
// known version suffixes, truncates at " - ", NFKD-normalizes, and keeps
// only letters (any script), digits, and spaces.
//
// asciiOnly additionally drops every non-ASCII rune, to catch transliterated
// titles on a second pass.
func normalizeTitle(title string, asciiOnly bool) string {
	t := strings.ToLower(title)

	if idx := strings.Index(t, " - "); idx >= 0 {
		t = t[:idx]
	}

	t = yearRemixRe.ReplaceAllString(t, "")
	t = bracketedRe.ReplaceAllString(t, "")
	t = featRe.ReplaceAllString(t, "")

	for _, suffix := range versionSuffixes {
		t = strings.ReplaceAll(t, suffix, "")
	}

	t = norm.NFKD.String(t)
	t = stripNonSpacing(t)

	if asciiOnly {
		t = keepASCIIRe.ReplaceAllString(t, " ")
	} else {
		t = keepCharsRe.ReplaceAllString(t, " ")
	}

	t = whitespaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// stripNonSpacing drops combining marks left behind by NFKD decomposition
// (e.g. the accent in "é" after it splits into "e" + U+0301).
func stripNonSpacing(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// containsRemixWord reports whether the whole word "remix" appears in title,
// case-insensitively.
func containsRemixWord(title string) bool {
	return remixWordRe.MatchString(title)
}

// artistSplitRe splits an artist credit string on any of the separators
// commonly used to join multiple artists, including "vs"/"vs." and " x "/
// " X " (collaboration and versus notations).
var artistSplitRe = regexp.MustCompile(`\s*(?:,|&| x | X | vs\.? )\s*`)

// splitArtists breaks a raw artist field into individual, normalized names.
func splitArtists(artists []string) []string {
	var out []string
	for _, a := range artists {
		for _, part := range artistSplitRe.Split(a, -1) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

// artistOverlap reports whether at least one normalized artist name appears
// in both sets.
func artistOverlap(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, name := range splitArtists(a) {
		seen[name] = struct{}{}
	}
	for _, name := range splitArtists(b) {
		if _, ok := seen[name]; ok {
			return true
		}
	}
	return false
}

// titlesOverlap reports whether, after normalization, one title is a
// substring of the other. Tries full-script normalization first and falls
// back to an ASCII-only pass to catch transliterated titles.
func titlesOverlap(a, b string) bool {
	na, nb := normalizeTitle(a, false), normalizeTitle(b, false)
	if na != "" && nb != "" && (strings.Contains(na, nb) || strings.Contains(nb, na)) {
		return true
	}

	na, nb = normalizeTitle(a, true), normalizeTitle(b, true)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}
