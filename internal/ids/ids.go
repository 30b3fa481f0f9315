package ids

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"whygo/internal/domain"
)

const (
	suffixLen = 4
	base36    = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// ErrInvalidIDFormat is returned when an identifier does not follow the
// <prefix>[_<dept>]_<yy>_<suffix> layout.
var ErrInvalidIDFormat = errors.New("invalid id format")

var prefixes = map[domain.GoalLevel]string{
	domain.GoalCompany:    "cg",
	domain.GoalDepartment: "dg",
	domain.GoalIndividual: "ig",
}

// ParsedGoalID is the information encoded in a goal id.
type ParsedGoalID struct {
	Level      domain.GoalLevel
	Year       int
	Department *string
}

// GenerateGoalID mints a goal id. The 4-char suffix gives 36^4 values, so
// callers retrying one logical create must reuse the id they minted.
func GenerateGoalID(level domain.GoalLevel, department string, year int) (string, error) {
	prefix, ok := prefixes[level]
	if !ok {
		return "", fmt.Errorf("unknown goal level %q", level)
	}
	var b strings.Builder
	b.WriteString(prefix)
	if dept := DepartmentToken(department); dept != "" {
		b.WriteByte('_')
		b.WriteString(dept)
	}
	fmt.Fprintf(&b, "_%02d_%s", year%100, randomSuffix())
	return b.String(), nil
}

// GenerateOutcomeID derives the outcome id for the n-th (1-based) outcome.
func GenerateOutcomeID(goalID string, n int) string {
	return fmt.Sprintf("%s_o%d", goalID, n)
}

// ParseGoalID inverts GenerateGoalID.
func ParseGoalID(id string) (ParsedGoalID, error) {
	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		return ParsedGoalID{}, fmt.Errorf("%w: %q", ErrInvalidIDFormat, id)
	}
	var level domain.GoalLevel
	for l, p := range prefixes {
		if p == parts[0] {
			level = l
		}
	}
	if level == "" {
		return ParsedGoalID{}, fmt.Errorf("%w: unknown prefix %q", ErrInvalidIDFormat, parts[0])
	}
	yearIdx := 1
	res := ParsedGoalID{Level: level}
	switch len(parts) {
	case 3:
		if level != domain.GoalCompany {
			return ParsedGoalID{}, fmt.Errorf("%w: %s id needs a department", ErrInvalidIDFormat, level)
		}
	case 4:
		if level == domain.GoalCompany || parts[1] == "" {
			return ParsedGoalID{}, fmt.Errorf("%w: unexpected department segment in %q", ErrInvalidIDFormat, id)
		}
		dept := parts[1]
		res.Department = &dept
		yearIdx = 2
	default:
		return ParsedGoalID{}, fmt.Errorf("%w: %q", ErrInvalidIDFormat, id)
	}
	token := parts[yearIdx]
	if len(token) != 2 || !isDigit(token[0]) || !isDigit(token[1]) {
		return ParsedGoalID{}, fmt.Errorf("%w: year %q", ErrInvalidIDFormat, token)
	}
	if !validSuffix(parts[len(parts)-1]) {
		return ParsedGoalID{}, fmt.Errorf("%w: suffix %q", ErrInvalidIDFormat, parts[len(parts)-1])
	}
	yy, _ := strconv.Atoi(token)
	res.Year = 2000 + yy
	return res, nil
}

// DepartmentToken lowercases the department and strips all whitespace.
func DepartmentToken(department string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, department)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func validSuffix(s string) bool {
	if len(s) != suffixLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(base36, rune(s[i])) {
			return false
		}
	}
	return true
}

// randomSuffix draws base36 characters from uuid bytes. Bytes at or above
// the largest multiple of 36 are skipped so every character is equally likely.
func randomSuffix() string {
	const limit = 256 - 256%len(base36)
	out := make([]byte, 0, suffixLen)
	for len(out) < suffixLen {
		u := uuid.New()
		for _, b := range u {
			if int(b) >= limit {
				continue
			}
			out = append(out, base36[int(b)%len(base36)])
			if len(out) == suffixLen {
				break
			}
		}
	}
	return string(out)
}
