package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Amount coerces a backend-supplied scalar into a finite number.
//
// The commerce API is loose about numeric fields: amounts arrive as numbers,
// numeric strings, strings carrying currency symbols or thousand separators,
// booleans, or null. Absence of a usable number is represented by 0, never by
// an error; callers that must distinguish "zero" from "missing" check the raw
// field themselves.
func Amount(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case bool:
		return 0
	case float64:
		return finiteOrZero(v)
	case float32:
		return finiteOrZero(float64(v))
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		return parseAmountString(v.String())
	case string:
		return parseAmountString(v)
	default:
		return 0
	}
}

func parseAmountString(raw string) float64 {
	cleaned := stripNonNumeric(raw)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return finiteOrZero(parsed)
}

// stripNonNumeric keeps digits, one decimal point, and a leading minus sign.
func stripNonNumeric(raw string) string {
	var b strings.Builder
	seenDot := false
	seenDigit := false
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			b.WriteRune(r)
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		case r == '-' && !seenDigit && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || out == "-" || out == "." || out == "-." {
		return ""
	}
	return out
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Round2 rounds a monetary amount to two decimal places.
func Round2(v float64) float64 {
	return math.Round(finiteOrZero(v)*100) / 100
}

// FlexAmount decodes any JSON scalar into a normalised amount.
type FlexAmount float64

// UnmarshalJSON implements json.Unmarshaler using the Amount coercion rules.
func (a *FlexAmount) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		*a = 0
		return nil
	}
	*a = FlexAmount(Amount(raw))
	return nil
}

// MarshalJSON emits the amount as a plain JSON number.
func (a FlexAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(a))
}

// Value returns the normalised float value.
func (a FlexAmount) Value() float64 { return finiteOrZero(float64(a)) }
