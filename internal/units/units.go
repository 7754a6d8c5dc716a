// Package units extracts amounts, rates, and durations written the way
// Indian users phrase them: "5 lakh", "2cr", "10k", "8.5%", "20 years".
package units

import (
	"regexp"
	"strconv"
	"strings"
)

// Multipliers for the supported unit words.
const (
	Thousand = 1_000
	Lakh     = 100_000
	Crore    = 10_000_000
)

var (
	amountRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(lakh|lakhs|crore|cr|k)?`)
	thousandsRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*k\b`)
	plainRe     = regexp.MustCompile(`(\d{3,9})`)
	percentRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	yearsRe     = regexp.MustCompile(`(\d{1,2})\s*(?:year|years|yrs|y)`)
	tenureRe    = regexp.MustCompile(`(\d{1,2})\s*(?:year|years|yrs)`)
	ageRe       = regexp.MustCompile(`(?:age|i am|i'm)\s*(\d{1,2})`)
	retireAtRe  = regexp.MustCompile(`(?:retire\s*at|retirement\s*age)\s*(\d{2})`)
)

// multiplier resolves a matched unit word. Substring checks keep plural
// and abbreviated forms working without enumerating them.
func multiplier(unit string) int64 {
	switch {
	case strings.Contains(unit, "lakh"):
		return Lakh
	case strings.Contains(unit, "crore"), strings.Contains(unit, "cr"):
		return Crore
	case strings.Contains(unit, "k"):
		return Thousand
	default:
		return 1
	}
}

// Amount returns the first number in text, scaled by an adjacent unit
// word when present. A bare number is taken literally. The first match
// wins; later numbers in the text are never considered.
func Amount(text string) (int64, bool) {
	m := amountRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0, false
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return int64(val * float64(multiplier(m[2]))), true
}

// AmountAfter returns an amount that directly follows one of the trigger
// words, e.g. AmountAfter("monthly expense 50k", "expense", "spend").
func AmountAfter(text string, triggers ...string) (int64, bool) {
	if len(triggers) == 0 {
		return 0, false
	}
	pattern := `(?:` + strings.Join(triggers, "|") + `)\s*(\d+(?:\.\d+)?)\s*(k|lakh|lakhs|crore|cr)?`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, false
	}
	m := re.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0, false
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return int64(val * float64(multiplier(m[2]))), true
}

// ThousandsOnly matches "10k" style amounts, falling back to a plain
// 3 to 9 digit number. This is the stricter form monthly contribution
// queries use, so that "10" in "10 years" is never read as an amount.
func ThousandsOnly(text string) (int64, bool) {
	q := strings.ToLower(text)
	if m := thousandsRe.FindStringSubmatch(q); m != nil {
		val, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return int64(val * Thousand), true
	}
	if m := plainRe.FindStringSubmatch(q); m != nil {
		val, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return val, true
	}
	return 0, false
}

// Percent returns the first "N%" value in text.
func Percent(text string) (float64, bool) {
	m := percentRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0, false
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// Years returns the first duration like "15 years" or "15yrs".
func Years(text string) (int, bool) {
	return matchInt(yearsRe, text)
}

// Tenure is Years without the bare "y" suffix, used where "y" would
// collide with other words.
func Tenure(text string) (int, bool) {
	return matchInt(tenureRe, text)
}

// Age returns an age following "age", "i am" or "i'm".
func Age(text string) (int, bool) {
	return matchInt(ageRe, text)
}

// RetirementAge returns a two digit age following "retire at" or
// "retirement age".
func RetirementAge(text string) (int, bool) {
	return matchInt(retireAtRe, text)
}

func matchInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0, false
	}
	val, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return val, true
}
