package tenant

import (
	"errors"
	"fmt"
)

const (
	MinIDLength = 3
	MaxIDLength = 63
)

var ErrInvalidID = errors.New("invalid tenant id")

// ID is a validated tenant identifier. The zero value is not a valid ID;
// construct one with ParseID.
type ID struct {
	value string
}

// ParseID validates s against the tenant id policy: 3 to 63 characters of
// lowercase letters, digits, '-' and '_', starting and ending with a letter
// or digit.
func ParseID(s string) (ID, error) {
	if len(s) < MinIDLength {
		return ID{}, fmt.Errorf("%w: must be at least %d characters", ErrInvalidID, MinIDLength)
	}
	if len(s) > MaxIDLength {
		return ID{}, fmt.Errorf("%w: must be at most %d characters", ErrInvalidID, MaxIDLength)
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isLowerAlnum(c):
		case c == '-' || c == '_':
			if i == 0 {
				return ID{}, fmt.Errorf("%w: must start with a lowercase letter or digit", ErrInvalidID)
			}
			if i == len(s)-1 {
				return ID{}, fmt.Errorf("%w: must end with a lowercase letter or digit", ErrInvalidID)
			}
		default:
			return ID{}, fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidID, c, i)
		}
	}

	return ID{value: s}, nil
}

// MustParseID is like ParseID but panics on error. Intended for tests and constants.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return id.value
}

func (id ID) IsZero() bool {
	return id.value == ""
}

func isLowerAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
