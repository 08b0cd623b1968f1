// Package domain holds the identity graph's vertex, edge, and enum
// types, plus the freshness and UUID policies that the rest of the
// service builds on.
package domain

import "strings"

// Platform enumerates every identity platform RelationService
// understands. Adding a variant is backward-compatible; renaming or
// removing one is not (see spec §6, "Enum stability").
type Platform string

const (
	PlatformTwitter            Platform = "twitter"
	PlatformEthereum           Platform = "ethereum"
	PlatformENS                Platform = "ENS"
	PlatformLens               Platform = "lens"
	PlatformDotbit             Platform = "dotbit"
	PlatformFarcaster          Platform = "farcaster"
	PlatformUnstoppableDomains Platform = "unstoppabledomains"
	PlatformSpaceId            Platform = "space_id"
	PlatformSolana             Platform = "solana"
	PlatformSNS                Platform = "SNS"
	PlatformCrossbell          Platform = "crossbell"
	PlatformGenome             Platform = "genome"
	PlatformUnknown            Platform = "unknown"
)

// AllPlatforms backs the `availablePlatforms` introspection query.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformTwitter, PlatformEthereum, PlatformENS, PlatformLens,
		PlatformDotbit, PlatformFarcaster, PlatformUnstoppableDomains,
		PlatformSpaceId, PlatformSolana, PlatformSNS, PlatformCrossbell,
		PlatformGenome,
	}
}

// ParsePlatform accepts the lowercase snake_case wire form (with the
// ENS/SNS casing exceptions) and returns a ParamError-worthy bool on
// failure.
func ParsePlatform(s string) (Platform, bool) {
	for _, p := range AllPlatforms() {
		if strings.EqualFold(string(p), s) {
			return p, true
		}
	}
	return PlatformUnknown, false
}

// domainSystemPlatforms is the set for which the `reverse` flag is
// meaningful (spec §3, Invariants).
var domainSystemPlatforms = map[Platform]bool{
	PlatformLens:               true,
	PlatformDotbit:             true,
	PlatformUnstoppableDomains: true,
	PlatformSpaceId:            true,
	PlatformCrossbell:          true,
	PlatformEthereum:           true,
	PlatformENS:                true,
	PlatformSolana:             true,
	PlatformSNS:                true,
	PlatformGenome:             true,
}

// HasReverseFlag reports whether `reverse` is an observable attribute
// for identities on this platform.
func (p Platform) HasReverseFlag() bool {
	return domainSystemPlatforms[p]
}

// ownableDomainPlatforms is the set for which `owned_by` is populated
// (spec §3, Invariants).
var ownableDomainPlatforms = map[Platform]bool{
	PlatformLens:               true,
	PlatformDotbit:             true,
	PlatformUnstoppableDomains: true,
	PlatformFarcaster:          true,
	PlatformSpaceId:            true,
	PlatformCrossbell:          true,
	PlatformENS:                true,
	PlatformSNS:                true,
	PlatformGenome:             true,
}

// IsOwnable reports whether identities on this platform can have an
// `owned_by` wallet.
func (p Platform) IsOwnable() bool {
	return ownableDomainPlatforms[p]
}
