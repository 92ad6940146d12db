package colour

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedHex is matched by every error returned for hex input that is not a
// 3- or 6-digit hexadecimal colour.
var ErrMalformedHex = errors.New("colour: malformed hex colour")

// MalformedHexError describes a rejected hex string.
type MalformedHexError struct {
	Input  string
	Reason string
}

func (e *MalformedHexError) Error() string {
	return fmt.Sprintf("colour: malformed hex colour %q: %s", e.Input, e.Reason)
}

// Is reports whether target is ErrMalformedHex.
func (e *MalformedHexError) Is(target error) bool {
	return target == ErrMalformedHex
}

// ParseHex converts a 3- or 6-digit hex colour, with or without a leading "#", to RGB.
// The 3-digit form duplicates each nibble ("#fa0" is "#ffaa00").
func ParseHex(hex string) (RGB, error) {
	digits := strings.TrimPrefix(strings.TrimSpace(hex), "#")

	var nibbles [6]byte
	switch len(digits) {
	case 3:
		for i := 0; i < 3; i++ {
			v, ok := hexNibble(digits[i])
			if !ok {
				return RGB{}, &MalformedHexError{Input: hex, Reason: fmt.Sprintf("invalid digit %q", digits[i])}
			}
			nibbles[2*i] = v
			nibbles[2*i+1] = v
		}
	case 6:
		for i := 0; i < 6; i++ {
			v, ok := hexNibble(digits[i])
			if !ok {
				return RGB{}, &MalformedHexError{Input: hex, Reason: fmt.Sprintf("invalid digit %q", digits[i])}
			}
			nibbles[i] = v
		}
	default:
		return RGB{}, &MalformedHexError{Input: hex, Reason: fmt.Sprintf("expected 3 or 6 digits, got %d", len(digits))}
	}

	return RGB{
		R: nibbles[0]<<4 | nibbles[1],
		G: nibbles[2]<<4 | nibbles[3],
		B: nibbles[4]<<4 | nibbles[5],
	}, nil
}

// NormaliseHex returns the canonical key form of a hex colour: six lowercase digits, no "#".
func NormaliseHex(hex string) (string, error) {
	rgb, err := ParseHex(hex)
	if err != nil {
		return "", err
	}
	return rgb.Key(), nil
}

// UpperHex returns "#RRGGBB" for display.
func UpperHex(rgb RGB) string {
	return strings.ToUpper(rgb.Hex())
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
