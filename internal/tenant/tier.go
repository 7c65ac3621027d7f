package tenant

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownTier = errors.New("unknown tier")

// Tier is a named quota class.
type Tier string

const (
	TierFree       Tier = "free"
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// ParseTier is case-insensitive and rejects unknown names.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return TierFree, nil
	case "standard":
		return TierStandard, nil
	case "premium":
		return TierPremium, nil
	case "enterprise":
		return TierEnterprise, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTier, s)
	}
}

// TierOrDefault parses s leniently, falling back to TierStandard.
func TierOrDefault(s string) Tier {
	t, err := ParseTier(s)
	if err != nil {
		return TierStandard
	}
	return t
}

func (t Tier) String() string {
	return string(t)
}
