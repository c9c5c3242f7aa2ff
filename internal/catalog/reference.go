package catalog

import (
	"net/url"
	"regexp"
	"strings"
)

// Reference parsing. These are pure functions; each either yields a
// normalized reference or reports failure explicitly so the caller can drop
// the variant and count it.

var (
	structuredRefPattern = regexp.MustCompile(`^[A-Z]?(\d+)(?:-[A-Z]\d+)?$`)
	groupedRefPattern    = regexp.MustCompile(`^\d{4}/\d{3}/\d{3}$`)
	digitsPattern        = regexp.MustCompile(`\d+`)
)

// NormalizeStructuredReference converts a structured commercial reference
// such as "C0128022680002-I2025" into the grouped display form
// "1280/226/800": the type prefix and campaign suffix are stripped, leading
// zeros dropped, and the first ten remaining digits regrouped 4/3/3.
// The boolean is false when the input does not carry enough digits.
func NormalizeStructuredReference(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	m := structuredRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", false
	}
	digits := strings.TrimLeft(m[1], "0")
	if len(digits) < 10 {
		return "", false
	}
	return groupDigits(digits[:10]), true
}

// ReferenceFromMediaPath derives a reference from a media URL by taking the
// digits of the last path segment. Ten or more digits are regrouped like a
// structured reference; shorter runs are returned raw.
func ReferenceFromMediaPath(mediaURL string) (string, bool) {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return "", false
	}
	path := u.Path
	if path == "" {
		path = mediaURL
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if dot := strings.LastIndexByte(seg, '.'); dot >= 0 {
			seg = seg[:dot]
		}
		digits := strings.Join(digitsPattern.FindAllString(seg, -1), "")
		if trimmed := strings.TrimLeft(digits, "0"); len(trimmed) >= 10 {
			return groupDigits(trimmed[:10]), true
		}
		if len(digits) >= 6 {
			return digits, true
		}
	}
	return "", false
}

// IsReferenceCode reports whether the user input looks like a reference code
// rather than a URL: either the grouped display form "1280/226/800" or a raw
// structured reference.
func IsReferenceCode(input string) bool {
	input = strings.TrimSpace(input)
	if groupedRefPattern.MatchString(input) {
		return true
	}
	if m := structuredRefPattern.FindStringSubmatch(input); m != nil && len(m[1]) >= 10 {
		return true
	}
	return false
}

// CanonicalizeReferenceCode normalizes any accepted reference-code input to
// the grouped display form used as the store key.
func CanonicalizeReferenceCode(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if groupedRefPattern.MatchString(input) {
		return input, true
	}
	return NormalizeStructuredReference(input)
}

func groupDigits(d string) string {
	// d is exactly 10 digits here.
	return d[:4] + "/" + d[4:7] + "/" + d[7:]
}
