package admin

import (
	"fmt"
	"strconv"
	"strings"
)

// PasswordQuality mirrors the platform's password quality constants.
type PasswordQuality int

const (
	QualityUnspecified    PasswordQuality = 0x00000
	QualitySomething      PasswordQuality = 0x10000
	QualityNumeric        PasswordQuality = 0x20000
	QualityNumericComplex PasswordQuality = 0x30000
	QualityAlphabetic     PasswordQuality = 0x40000
	QualityAlphanumeric   PasswordQuality = 0x50000
	QualityComplex        PasswordQuality = 0x60000
)

var qualityNames = map[PasswordQuality]string{
	QualityUnspecified:    "unspecified",
	QualitySomething:      "something",
	QualityNumeric:        "numeric",
	QualityNumericComplex: "numeric_complex",
	QualityAlphabetic:     "alphabetic",
	QualityAlphanumeric:   "alphanumeric",
	QualityComplex:        "complex",
}

var qualityAliases = map[string]PasswordQuality{
	"low":    QualitySomething,
	"medium": QualityNumeric,
	"high":   QualityComplex,
}

func (q PasswordQuality) Valid() bool {
	_, ok := qualityNames[q]
	return ok
}

func (q PasswordQuality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return fmt.Sprintf("quality(%#x)", int(q))
}

func (q PasswordQuality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

func (q *PasswordQuality) UnmarshalText(text []byte) error {
	parsed, err := ParsePasswordQuality(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParsePasswordQuality accepts quality names, the low/medium/high aliases and
// hex or decimal constant values.
func ParsePasswordQuality(s string) (PasswordQuality, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	if q, ok := qualityAliases[name]; ok {
		return q, nil
	}
	for q, n := range qualityNames {
		if n == name {
			return q, nil
		}
	}
	if raw, err := strconv.ParseInt(name, 0, 64); err == nil {
		if q := PasswordQuality(raw); q.Valid() {
			return q, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown password quality %q", ErrInvalidParameter, s)
}
