package msgpath

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseLeadingFloat parses the longest numeric prefix of text, skipping
// leading whitespace, the way JavaScript's parseFloat does. "3.5abc" yields
// 3.5; "abc" yields false.
func ParseLeadingFloat(text string) (float64, bool) {
	s := strings.TrimLeftFunc(text, unicode.IsSpace)

	i := 0
	sign := 1.0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		if s[i] == '-' {
			sign = -1
		}
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		return math.Inf(int(sign)), true
	}

	start := i
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, false
	}
	mantissaEnd := i

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expStart := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j > expStart {
			mantissaEnd = j
		}
	}

	f, err := strconv.ParseFloat(s[start:mantissaEnd], 64)
	if err != nil {
		// Only range errors are possible here; ParseFloat returns ±Inf for those.
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return 0, false
		}
	}
	return sign * f, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
