package settlement

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// DefaultProfile is the code of the policy applied to persisted sales.
const DefaultProfile = "default"

// Policy is a dealer profile: the tax/adjustment rule turning
// margin_before_tax into margin_after_tax.
type Policy struct {
	Code string `json:"code"`
	// TaxRateBP is the withholding rate in basis points (1000 = 10%).
	TaxRateBP int64 `json:"tax_rate_bp"`
	// TaxLosses applies the rate to negative margins too.
	TaxLosses bool `json:"tax_losses"`
}

// Validate checks the rate bounds.
func (p Policy) Validate() error {
	if p.TaxRateBP < 0 || p.TaxRateBP > basisPoints {
		return shared.FieldErrors{"tax_rate_bp": fmt.Sprintf("must be between 0 and %d", basisPoints)}
	}
	return nil
}

func (p Policy) tax(margin int64) int64 {
	if margin <= 0 && !p.TaxLosses {
		return 0
	}
	return roundRate(margin, p.TaxRateBP)
}

// Profiles is an immutable registry of named policies.
type Profiles struct {
	byCode map[string]Policy
}

// NewProfiles builds a registry; it must contain DefaultProfile.
func NewProfiles(policies ...Policy) (*Profiles, error) {
	byCode := make(map[string]Policy, len(policies))
	for _, p := range policies {
		code := strings.ToLower(strings.TrimSpace(p.Code))
		if code == "" {
			return nil, shared.Validationf("profile code required")
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", code, err)
		}
		p.Code = code
		byCode[code] = p
	}
	if _, ok := byCode[DefaultProfile]; !ok {
		return nil, shared.Validationf("profile %q must be configured", DefaultProfile)
	}
	return &Profiles{byCode: byCode}, nil
}

// ProfilesFromRates builds a registry from the config map code → basis points.
// defaultBP always backs DefaultProfile unless the map overrides it.
func ProfilesFromRates(defaultBP int64, taxLosses bool, rates map[string]int64) (*Profiles, error) {
	policies := []Policy{{Code: DefaultProfile, TaxRateBP: defaultBP, TaxLosses: taxLosses}}
	for code, bp := range rates {
		policies = append(policies, Policy{Code: code, TaxRateBP: bp, TaxLosses: taxLosses})
	}
	return NewProfiles(policies...)
}

// Lookup returns the policy registered under code.
func (p *Profiles) Lookup(code string) (Policy, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		code = DefaultProfile
	}
	policy, ok := p.byCode[code]
	if !ok {
		return Policy{}, shared.FieldErrors{"dealerProfile.code": fmt.Sprintf("unknown profile %q", code)}
	}
	return policy, nil
}

// Default returns the policy used on every write path.
func (p *Profiles) Default() Policy {
	return p.byCode[DefaultProfile]
}

// Codes lists registered profile codes in order.
func (p *Profiles) Codes() []string {
	codes := make([]string, 0, len(p.byCode))
	for c := range p.byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
