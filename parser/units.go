// Package parser turns raw part records into engineering quantities.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrNoNumber is returned when a value contains no number.
var ErrNoNumber = errors.New("no number in value")

var (
	numberRe    = regexp.MustCompile(`[-+]?(?:\d*\.\d+|\d+)`)
	thousandsRe = regexp.MustCompile(`(\d),(\d{3})`)
)

// siPrefixes maps SI prefix symbols to their multipliers. "u" and "μ" are both micro.
var siPrefixes = map[string]float64{
	"Q":  1e30,
	"R":  1e27,
	"Y":  1e24,
	"Z":  1e21,
	"E":  1e18,
	"P":  1e15,
	"T":  1e12,
	"G":  1e9,
	"M":  1e6,
	"k":  1e3,
	"h":  1e2,
	"da": 1e1,
	"d":  1e-1,
	"c":  1e-2,
	"m":  1e-3,
	"u":  1e-6,
	"n":  1e-9,
	"p":  1e-12,
	"f":  1e-15,
	"a":  1e-18,
	"z":  1e-21,
	"y":  1e-24,
	"r":  1e-27,
	"q":  1e-30,

	"\u03bc": 1e-6,
}

// baseUnits are unit symbols that are never read as a prefix on their own.
var baseUnits = map[string]struct{}{
	"F": {}, "V": {}, "A": {}, "\u03a9": {}, "Ohm": {}, "Ohms": {}, "ohm": {}, "ohms": {},
	"Hz": {}, "m": {}, "g": {}, "s": {}, "W": {}, "H": {}, "J": {}, "Wh": {}, "Ah": {},
	"VA": {}, "VAC": {}, "VDC": {}, "C": {}, "K": {}, "Pa": {}, "lb": {}, "in": {},
}

// Normalize applies NFKC and trims surrounding space. It folds the micro sign into the
// Greek mu and the ohm sign into capital omega.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

// ParseNumber returns the first number in s, ignoring any unit.
func ParseNumber(s string) (float64, error) {
	num, _, err := splitNumber(Normalize(s))
	return num, err
}

// ParseInt returns the first number in s as an integer. Fractional values are rejected.
func ParseInt(s string) (int, error) {
	s = thousandsRe.ReplaceAllString(Normalize(s), "$1$2")
	m := numberRe.FindString(s)
	if m == "" {
		return 0, fmt.Errorf("%w: %q", ErrNoNumber, s)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(m, "+"))
	if err != nil {
		return 0, fmt.Errorf("parse integer %q: %w", m, err)
	}
	return n, nil
}

// ToBaseUnits converts a value with an optional SI-prefixed unit to base units,
// e.g. "10 µF" to 1e-5 and "25 mm" to 0.025. A bare "m" is metres, not milli, and
// units outside the known set are left unscaled.
func ToBaseUnits(s string) (float64, error) {
	num, rest, err := splitNumber(Normalize(s))
	if err != nil {
		return 0, err
	}
	return num * prefixMultiplier(unitToken(rest)), nil
}

// ParseRange parses "low ~ high" into two values in base units. A single value is
// returned as both bounds. A bound without a unit borrows the unit of the other one.
func ParseRange(s string) (low, high float64, err error) {
	s = Normalize(s)
	parts := strings.SplitN(s, "~", 2)
	if len(parts) == 1 {
		v, err := ToBaseUnits(s)
		return v, v, err
	}

	lowText, highText := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	_, lowRest, err := splitNumber(lowText)
	if err != nil {
		return 0, 0, fmt.Errorf("range low bound: %w", err)
	}
	_, highRest, err := splitNumber(highText)
	if err != nil {
		return 0, 0, fmt.Errorf("range high bound: %w", err)
	}
	if unitToken(lowRest) == "" {
		lowText += " " + unitToken(highRest)
	}
	if unitToken(highRest) == "" {
		highText += " " + unitToken(lowRest)
	}

	if low, err = ToBaseUnits(lowText); err != nil {
		return 0, 0, err
	}
	if high, err = ToBaseUnits(highText); err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

// IsRange reports whether s holds a "low ~ high" range.
func IsRange(s string) bool {
	return strings.Contains(s, "~")
}

func splitNumber(s string) (float64, string, error) {
	s = thousandsRe.ReplaceAllString(s, "$1$2")
	loc := numberRe.FindStringIndex(s)
	if loc == nil {
		return 0, "", fmt.Errorf("%w: %q", ErrNoNumber, s)
	}
	num, err := strconv.ParseFloat(s[loc[0]:loc[1]], 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse number %q: %w", s[loc[0]:loc[1]], err)
	}
	return num, s[loc[1]:], nil
}

// unitToken returns the leading run of letters after a number.
func unitToken(rest string) string {
	rest = strings.TrimSpace(rest)
	end := 0
	for i, r := range rest {
		if !unicode.IsLetter(r) {
			break
		}
		end = i + len(string(r))
	}
	return rest[:end]
}

func prefixMultiplier(unit string) float64 {
	if unit == "" {
		return 1
	}
	if _, ok := baseUnits[unit]; ok {
		return 1
	}
	if strings.HasPrefix(unit, "da") {
		if _, ok := baseUnits[unit[2:]]; ok {
			return siPrefixes["da"]
		}
	}
	runes := []rune(unit)
	if len(runes) < 2 {
		return 1
	}
	if _, ok := baseUnits[string(runes[1:])]; !ok {
		return 1
	}
	if mult, ok := siPrefixes[string(runes[0])]; ok {
		return mult
	}
	return 1
}
