package domain

import "strings"

// Tier enumerates subscription levels.
type Tier string

const (
	TierFree      Tier = "FREE"
	TierBasic     Tier = "BASIC"
	TierPro       Tier = "PRO"
	TierUnlimited Tier = "UNLIMITED"
)

// Unlimited marks a pool without a daily cap.
const Unlimited = -1

// TierPolicy is one row of the quota policy table.
type TierPolicy struct {
	Tier           Tier
	Styles         []Style
	GeneralLimit   int
	SpecialtyLimit int
}

// Each tier allows every style of the tiers before it.
var tierPolicies = []TierPolicy{
	{
		Tier:           TierFree,
		Styles:         []Style{StylePhotorealistic, StyleDigitalArt, StyleIllustration, StyleGhibli},
		GeneralLimit:   10,
		SpecialtyLimit: 5,
	},
	{
		Tier:           TierBasic,
		Styles:         []Style{StylePhotorealistic, StyleDigitalArt, StyleIllustration, StyleGhibli, Style3DRender, StylePixelArt},
		GeneralLimit:   50,
		SpecialtyLimit: 20,
	},
	{
		Tier:           TierPro,
		Styles:         []Style{StylePhotorealistic, StyleDigitalArt, StyleIllustration, StyleGhibli, Style3DRender, StylePixelArt, StyleAnime, StyleWatercolor},
		GeneralLimit:   200,
		SpecialtyLimit: 100,
	},
	{
		Tier:           TierUnlimited,
		Styles:         []Style{StylePhotorealistic, StyleDigitalArt, StyleIllustration, StyleGhibli, Style3DRender, StylePixelArt, StyleAnime, StyleWatercolor, StyleOilPainting},
		GeneralLimit:   Unlimited,
		SpecialtyLimit: Unlimited,
	},
}

// TierPolicies returns the policy table ordered from lowest to highest tier.
func TierPolicies() []TierPolicy {
	out := make([]TierPolicy, len(tierPolicies))
	copy(out, tierPolicies)
	return out
}

// ParseTier normalizes a tier name.
func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(raw)))
	for _, p := range tierPolicies {
		if p.Tier == t {
			return t, nil
		}
	}
	return "", ErrUnsupportedTier
}

// PolicyFor returns the policy of a tier. Unknown tiers get the FREE policy.
func PolicyFor(t Tier) TierPolicy {
	for _, p := range tierPolicies {
		if p.Tier == t {
			return p
		}
	}
	return tierPolicies[0]
}

// Allows reports whether the style is part of the tier.
func (p TierPolicy) Allows(s Style) bool {
	for _, allowed := range p.Styles {
		if allowed == s {
			return true
		}
	}
	return false
}
