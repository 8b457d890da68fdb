package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Code families. ICD-10 patterns are dot-delimited ("E11.65"); CPT patterns
// are contiguous digits ("10021") and may appear as numeric ranges.
const (
	CodeTypeICD10 = "icd10"
	CodeTypeCPT   = "cpt"
)

type Kind string

const (
	KindMetaCategory Kind = "meta_category"
	KindCategory     Kind = "category"
	KindSubcategory  Kind = "subcategory"
	KindCode         Kind = "code"
	KindRange        Kind = "range"
	KindWildcard     Kind = "wildcard"
)

// Hierarchy levels, root first. Cascade generation walks root -> leaf;
// rule lookup walks leaf -> root.
const (
	LevelMetaCategory = 0
	LevelCategory     = 1
	LevelSubcategory  = 2
	LevelCode         = 3
)

var ErrInvalidPattern = errors.New("invalid code pattern")

var (
	icd10Meta        = regexp.MustCompile(`^[A-Z]$`)
	icd10Category    = regexp.MustCompile(`^[A-Z][0-9]{1,2}$`)
	icd10Subcategory = regexp.MustCompile(`^[A-Z][0-9]{1,2}\.[0-9]$`)
	icd10Code        = regexp.MustCompile(`^[A-Z][0-9]{1,2}\.[0-9][0-9A-Z]{1,3}$`)
	cptDigits        = regexp.MustCompile(`^[0-9]{1,5}$`)
	rangeShape       = regexp.MustCompile(`^[0-9A-Z.]+:[0-9A-Z.]+$`)
)

// Classify maps a pattern string to its hierarchy kind for the given code
// family. Range and wildcard patterns classify the same way in every family.
func Classify(p, codeType string) (Kind, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if strings.Contains(p, "*") {
		return KindWildcard, nil
	}
	if strings.Contains(p, ":") {
		if !rangeShape.MatchString(p) {
			return "", fmt.Errorf("%w: malformed range %q", ErrInvalidPattern, p)
		}
		return KindRange, nil
	}
	switch codeType {
	case CodeTypeICD10:
		switch {
		case icd10Meta.MatchString(p):
			return KindMetaCategory, nil
		case icd10Category.MatchString(p):
			return KindCategory, nil
		case icd10Subcategory.MatchString(p):
			return KindSubcategory, nil
		case icd10Code.MatchString(p):
			return KindCode, nil
		}
	case CodeTypeCPT:
		if cptDigits.MatchString(p) {
			switch len(p) {
			case 1:
				return KindMetaCategory, nil
			case 2, 3:
				return KindCategory, nil
			case 4:
				return KindSubcategory, nil
			case 5:
				return KindCode, nil
			}
		}
	default:
		return "", fmt.Errorf("%w: unknown code type %q", ErrInvalidPattern, codeType)
	}
	return "", fmt.Errorf("%w: %q does not match any %s shape", ErrInvalidPattern, p, codeType)
}

// Level returns the hierarchy rank of a non-range, non-wildcard pattern,
// root = 0 increasing toward the leaf.
func Level(p, codeType string) (int, error) {
	kind, err := Classify(p, codeType)
	if err != nil {
		return 0, err
	}
	switch kind {
	case KindMetaCategory:
		return LevelMetaCategory, nil
	case KindCategory:
		return LevelCategory, nil
	case KindSubcategory:
		return LevelSubcategory, nil
	case KindCode:
		return LevelCode, nil
	}
	return 0, fmt.Errorf("%w: %q has no hierarchy level", ErrInvalidPattern, p)
}

// Ancestors returns the ancestor chain of a code, nearest-first, ending at
// the root meta-category. Ranges and wildcards sit on a different axis and
// have no computed chain: they return an empty result without error.
func Ancestors(code, codeType string) ([]string, error) {
	kind, err := Classify(code, codeType)
	if err != nil {
		return nil, err
	}
	if kind == KindRange || kind == KindWildcard {
		return nil, nil
	}
	out := make([]string, 0, 3)
	cur := code
	for {
		parent, ok := parentOf(cur, codeType)
		if !ok {
			break
		}
		out = append(out, parent)
		cur = parent
	}
	return out, nil
}

// parentOf derives the direct parent one hierarchy level up: a code
// truncates to its subcategory, a subcategory to its category, a category
// to the one-symbol root. Intermediate truncations ("E1", "10") are not
// levels of the hierarchy and never appear.
func parentOf(p, codeType string) (string, bool) {
	kind, err := Classify(p, codeType)
	if err != nil {
		return "", false
	}
	switch kind {
	case KindCode:
		if codeType == CodeTypeICD10 {
			dot := strings.IndexByte(p, '.')
			return p[:dot+2], true
		}
		return p[:4], true
	case KindSubcategory:
		if codeType == CodeTypeICD10 {
			return p[:strings.IndexByte(p, '.')], true
		}
		return p[:3], true
	case KindCategory:
		return p[:1], true
	}
	return "", false
}

// Matches reports whether a concrete code falls under a pattern. Exact
// patterns compare literally, wildcard patterns substitute `*` with an
// any-characters matcher, and range patterns compare bounds numerically when
// possible. A malformed range (non-numeric bounds with no shared prefix)
// degrades to lexicographic bound comparison rather than failing; that
// fallback is a known approximation, kept deliberately.
func Matches(code, p string) bool {
	code = strings.TrimSpace(code)
	p = strings.TrimSpace(p)
	if code == "" || p == "" {
		return false
	}
	if code == p {
		return true
	}
	if strings.Contains(p, "*") {
		return matchWildcard(code, p)
	}
	if strings.Contains(p, ":") {
		return matchRange(code, p)
	}
	return false
}

func matchWildcard(code, p string) bool {
	parts := strings.Split(p, "*")
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(code)
}

func matchRange(code, p string) bool {
	bounds := strings.SplitN(p, ":", 2)
	lo := strings.TrimSpace(bounds[0])
	hi := strings.TrimSpace(bounds[1])
	if lo == "" || hi == "" {
		return false
	}

	if loN, hiN, codeN, ok := allNumeric(lo, hi, code); ok {
		return codeN >= loN && codeN <= hiN
	}

	// Shared alphabetic prefix with numeric suffixes, e.g. "J10:J18".
	prefix := commonPrefix(lo, hi)
	if prefix != "" && strings.HasPrefix(code, prefix) {
		loS, loOK := numericSuffix(lo, prefix)
		hiS, hiOK := numericSuffix(hi, prefix)
		codeS, codeOK := numericSuffix(code, prefix)
		if loOK && hiOK && codeOK {
			return codeS >= loS && codeS <= hiS
		}
	}

	// Degraded lexicographic comparison for malformed ranges.
	return code >= lo && code <= hi
}

func allNumeric(lo, hi, code string) (int, int, int, bool) {
	loN, err1 := strconv.Atoi(lo)
	hiN, err2 := strconv.Atoi(hi)
	codeN, err3 := strconv.Atoi(code)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return loN, hiN, codeN, true
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] && (a[i] < '0' || a[i] > '9') {
		i++
	}
	return a[:i]
}

func numericSuffix(s, prefix string) (int, bool) {
	rest := strings.TrimPrefix(s, prefix)
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
