package ports

import "fmt"

// PrivacyPolicy constrains which address types are acceptable sources and
// destinations. Values follow the zcashd z_sendmany vocabulary.
type PrivacyPolicy string

const (
	FullPrivacy             PrivacyPolicy = "FullPrivacy"
	AllowRevealedAmounts    PrivacyPolicy = "AllowRevealedAmounts"
	AllowRevealedRecipients PrivacyPolicy = "AllowRevealedRecipients"
	AllowRevealedSenders    PrivacyPolicy = "AllowRevealedSenders"
	AllowFullyTransparent   PrivacyPolicy = "AllowFullyTransparent"
	NoPrivacy               PrivacyPolicy = "NoPrivacy"
)

// ParsePrivacyPolicy returns the policy with the given name.
func ParsePrivacyPolicy(s string) (PrivacyPolicy, error) {
	p := PrivacyPolicy(s)
	switch p {
	case FullPrivacy, AllowRevealedAmounts, AllowRevealedRecipients,
		AllowRevealedSenders, AllowFullyTransparent, NoPrivacy:
		return p, nil
	}
	return "", fmt.Errorf("unknown privacy policy %q", s)
}

// RequiresShieldedSource returns whether the policy forbids transparent
// sources.
func (p PrivacyPolicy) RequiresShieldedSource() bool {
	return p == FullPrivacy || p == AllowRevealedAmounts ||
		p == AllowRevealedRecipients
}

// RequiresShieldedDestination returns whether the policy forbids
// transparent destinations.
func (p PrivacyPolicy) RequiresShieldedDestination() bool {
	return p == FullPrivacy || p == AllowRevealedAmounts ||
		p == AllowRevealedSenders
}
