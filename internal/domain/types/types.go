// Package types contains the enumerations shared across the application.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the parsers.
var (
	ErrUnknownTier     = errors.New("unknown tier")
	ErrUnknownVertical = errors.New("unknown vertical")
)

// Tier is the delegation category of a unit of work.
type Tier string

const (
	TierUnique  Tier = "unique"
	TierFounder Tier = "founder"
	TierSenior  Tier = "senior"
	TierJunior  Tier = "junior"
	TierEA      Tier = "ea"
)

// DefaultTier is assigned to events that carry no tier.
const DefaultTier = TierSenior

// Tiers lists every valid tier in reporting order.
func Tiers() []Tier {
	return []Tier{TierUnique, TierFounder, TierSenior, TierJunior, TierEA}
}

// Valid reports whether t is one of the five known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierUnique, TierFounder, TierSenior, TierJunior, TierEA:
		return true
	}
	return false
}

// Delegable reports whether work in this tier can be handed off.
func (t Tier) Delegable() bool {
	return t == TierSenior || t == TierJunior || t == TierEA
}

// ParseTier normalizes s and validates it. An empty string yields DefaultTier.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultTier, nil
	}
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

// Vertical is the domain a unit of work belongs to.
type Vertical string

const (
	VerticalUniversal   Vertical = "universal"
	VerticalEngineering Vertical = "engineering"
	VerticalBusiness    Vertical = "business"
)

// ParseVertical normalizes s. "technical" is accepted as an alias of
// engineering and an empty string yields universal.
func ParseVertical(s string) (Vertical, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "universal":
		return VerticalUniversal, nil
	case "engineering", "technical":
		return VerticalEngineering, nil
	case "business":
		return VerticalBusiness, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVertical, s)
}
