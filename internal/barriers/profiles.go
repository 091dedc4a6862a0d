package barriers

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const GenericProvider = "generic"

// Profile is one provider family: hostname patterns plus the hand-authored
// barriers its signup flow is known to have.
type Profile struct {
	Name     string    `yaml:"name"`
	Patterns []string  `yaml:"patterns"`
	Barriers []Barrier `yaml:"barriers"`
}

type profileFile struct {
	Providers []Profile `yaml:"providers"`
}

// Classifier matches hostnames against profiles in table order. The first
// profile with a matching pattern wins; the generic profile is the fallback.
type Classifier struct {
	profiles []Profile
	generic  Profile
}

func NewClassifier(profiles []Profile) (*Classifier, error) {
	c := &Classifier{}
	seen := map[string]bool{}
	for _, p := range profiles {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("provider profile without a name")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate provider profile %q", p.Name)
		}
		seen[p.Name] = true
		for i, b := range p.Barriers {
			if !b.Type.Valid() || !b.Stage.Valid() {
				return nil, fmt.Errorf("provider %q barrier %d: bad type/stage %q/%q", p.Name, i, b.Type, b.Stage)
			}
		}
		p.Barriers = NormalizeAll(p.Barriers)
		patterns := make([]string, 0, len(p.Patterns))
		for _, pat := range p.Patterns {
			if pat = strings.ToLower(strings.TrimSpace(pat)); pat != "" {
				patterns = append(patterns, pat)
			}
		}
		p.Patterns = patterns
		if p.Name == GenericProvider {
			c.generic = p
			continue
		}
		c.profiles = append(c.profiles, p)
	}
	if c.generic.Name == "" {
		return nil, fmt.Errorf("provider table needs a %q profile", GenericProvider)
	}
	return c, nil
}

// DefaultClassifier uses the built-in provider table.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultProfiles())
	if err != nil {
		panic(err)
	}
	return c
}

// LoadClassifier reads a YAML provider table; an empty path means defaults.
func LoadClassifier(path string) (*Classifier, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultClassifier(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider table: %w", err)
	}
	var f profileFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse provider table: %w", err)
	}
	return NewClassifier(f.Providers)
}

func (c *Classifier) Classify(providerURL string) Profile {
	host := hostOf(providerURL)
	if host == "" {
		return c.generic
	}
	for _, p := range c.profiles {
		for _, pat := range p.Patterns {
			if matchHost(host, pat) {
				return p
			}
		}
	}
	return c.generic
}

// matchHost reports whether pat occurs in host. A pattern ending in "." names
// a whole label, so "rec." matches rec.city.gov but not ymcarec.org.
func matchHost(host, pat string) bool {
	if strings.HasSuffix(pat, ".") {
		return strings.HasPrefix(host, pat) || strings.Contains(host, "."+pat)
	}
	return strings.Contains(host, pat)
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name:     "vscloud",
			Patterns: []string{"vscloud"},
			Barriers: []Barrier{
				{Type: TypeAccountCreation, Stage: StageAccountSetup, CaptchaLikelihood: 0.3, EstimatedMinutes: 5, Complexity: ComplexityMedium,
					RequiredFields: []string{"parent_name", "email", "password", "phone"}, Description: "Family account with email confirmation"},
				{Type: TypeCaptcha, Stage: StageRegistration, CaptchaLikelihood: 0.7, EstimatedMinutes: 2, Complexity: ComplexityMedium,
					Description: "Image CAPTCHA on the session cart"},
				{Type: TypeDocumentUpload, Stage: StageRegistration, EstimatedMinutes: 4, Complexity: ComplexityHigh,
					RequiredFields: []string{"medical_form", "immunization_record"}, Description: "Signed medical release upload"},
				{Type: TypePayment, Stage: StagePayment, CaptchaLikelihood: 0.1, EstimatedMinutes: 3, Complexity: ComplexityMedium,
					RequiredFields: []string{"card_number", "billing_zip"}, Description: "Card payment or deposit"},
			},
		},
		{
			Name:     "community_pass",
			Patterns: []string{"communitypass", "community-pass", "community_pass"},
			Barriers: []Barrier{
				{Type: TypeLogin, Stage: StageInitial, CaptchaLikelihood: 0.2, EstimatedMinutes: 1, Complexity: ComplexityLow,
					RequiredFields: []string{"email", "password"}, Description: "Household login"},
				{Type: TypeVerification, Stage: StageAccountSetup, EstimatedMinutes: 3, Complexity: ComplexityMedium,
					RequiredFields: []string{"email_code"}, Description: "Emailed verification code"},
				{Type: TypeCaptcha, Stage: StageRegistration, CaptchaLikelihood: 0.85, EstimatedMinutes: 2, Complexity: ComplexityHigh,
					Description: "reCAPTCHA before adding to cart"},
				{Type: TypePayment, Stage: StagePayment, EstimatedMinutes: 3, Complexity: ComplexityMedium,
					RequiredFields: []string{"card_number", "billing_address"}, Description: "Checkout payment"},
			},
		},
		{
			Name:     "active_communities",
			Patterns: []string{"activecommunities", "activenet", "active.com"},
			Barriers: []Barrier{
				{Type: TypeAccountCreation, Stage: StageAccountSetup, CaptchaLikelihood: 0.4, EstimatedMinutes: 6, Complexity: ComplexityMedium,
					RequiredFields: []string{"parent_name", "email", "password", "address", "child_birth_date"}, Description: "Account with family members"},
				{Type: TypeCaptcha, Stage: StageRegistration, CaptchaLikelihood: 0.9, EstimatedMinutes: 2, Complexity: ComplexityHigh,
					Description: "CAPTCHA when enrolling during peak load"},
				{Type: TypePayment, Stage: StagePayment, CaptchaLikelihood: 0.2, EstimatedMinutes: 4, Complexity: ComplexityMedium,
					RequiredFields: []string{"card_number", "billing_zip"}, Description: "Shopping cart checkout"},
			},
		},
		{
			Name:     "ymca",
			Patterns: []string{"ymca"},
			Barriers: []Barrier{
				{Type: TypeLogin, Stage: StageInitial, CaptchaLikelihood: 0.1, EstimatedMinutes: 1, Complexity: ComplexityLow,
					RequiredFields: []string{"member_id", "password"}, Description: "Member login"},
				{Type: TypeVerification, Stage: StageAccountSetup, EstimatedMinutes: 2, Complexity: ComplexityLow,
					RequiredFields: []string{"member_id"}, Description: "Membership check for member pricing"},
				{Type: TypePayment, Stage: StagePayment, EstimatedMinutes: 3, Complexity: ComplexityMedium,
					RequiredFields: []string{"card_number", "emergency_contact"}, Description: "Deposit payment"},
			},
		},
		{
			Name:     "municipal_parks",
			Patterns: []string{"parksandrec", "parks.", "recreation", "rec."},
			Barriers: []Barrier{
				{Type: TypeAccountCreation, Stage: StageAccountSetup, CaptchaLikelihood: 0.2, EstimatedMinutes: 8, Complexity: ComplexityHigh,
					RequiredFields: []string{"parent_name", "email", "address", "phone"}, Description: "Resident account, often approved by staff"},
				{Type: TypeDocumentUpload, Stage: StageAccountSetup, EstimatedMinutes: 5, Complexity: ComplexityHigh,
					RequiredFields: []string{"proof_of_residency"}, Description: "Proof of residency for resident pricing"},
				{Type: TypePayment, Stage: StagePayment, EstimatedMinutes: 3, Complexity: ComplexityMedium,
					RequiredFields: []string{"card_number"}, Description: "Online payment"},
			},
		},
		{
			Name: GenericProvider,
			Barriers: []Barrier{
				{Type: TypeAccountCreation, Stage: StageAccountSetup, CaptchaLikelihood: 0.5, EstimatedMinutes: 5, Complexity: ComplexityMedium,
					RequiredFields: []string{"parent_name", "email", "password"}, Description: "Provider account"},
				{Type: TypeCaptcha, Stage: StageRegistration, CaptchaLikelihood: 0.6, EstimatedMinutes: 2, Complexity: ComplexityMedium,
					Description: "Possible CAPTCHA on submit"},
				{Type: TypePayment, Stage: StagePayment, CaptchaLikelihood: 0.1, EstimatedMinutes: 4, Complexity: ComplexityMedium,
					RequiredFields: []string{"card_number"}, Description: "Payment"},
			},
		},
	}
}
