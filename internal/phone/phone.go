package phone

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmpty indicates the raw input contained no digits at all.
	ErrEmpty = errors.New("phone: number is empty")
	// ErrInvalid indicates the cleaned number matches no recognised shape.
	ErrInvalid = errors.New("phone: number is not a valid mobile number")
)

// Rejection records a raw number that failed normalization.
type Rejection struct {
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// Normalize cleans a raw phone string into canonical +<countryCode><digits>
// form. countryCode is the default calling code without the plus, e.g. "91".
// It never panics; unusable input comes back as an error.
func Normalize(raw, countryCode string) (string, error) {
	digits := cleanDigits(raw)
	if digits == "" {
		return "", ErrEmpty
	}

	switch {
	case len(digits) == 10:
		return "+" + countryCode + digits, nil
	case len(digits) == 11 && digits[0] == '0':
		// Local numbers are often written with a leading trunk zero.
		return "+" + countryCode + digits[1:], nil
	case len(digits) == len(countryCode)+10 && strings.HasPrefix(digits, countryCode):
		return "+" + digits, nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
}

// NormalizeAll normalizes every raw number, splitting the result into the
// canonical valid set and the rejected set. Order is preserved and
// duplicates after normalization are dropped.
func NormalizeAll(raws []string, countryCode string) ([]string, []Rejection) {
	valid := make([]string, 0, len(raws))
	rejected := make([]Rejection, 0)
	seen := make(map[string]struct{}, len(raws))

	for _, raw := range raws {
		canonical, err := Normalize(raw, countryCode)
		if err != nil {
			rejected = append(rejected, Rejection{Raw: raw, Reason: err.Error()})
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		valid = append(valid, canonical)
	}

	return valid, rejected
}

func cleanDigits(raw string) string {
	var builder strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
