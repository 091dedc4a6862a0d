// Package barriers predicts the obstacles a parent will hit while signing up
// with a provider.
package barriers

type Type string

const (
	TypeAccountCreation Type = "account_creation"
	TypeLogin           Type = "login"
	TypeCaptcha         Type = "captcha"
	TypeDocumentUpload  Type = "document_upload"
	TypePayment         Type = "payment"
	TypeVerification    Type = "verification"
)

func (t Type) Valid() bool {
	switch t {
	case TypeAccountCreation, TypeLogin, TypeCaptcha, TypeDocumentUpload, TypePayment, TypeVerification:
		return true
	}
	return false
}

type Stage string

const (
	StageInitial      Stage = "initial"
	StageAccountSetup Stage = "account_setup"
	StageRegistration Stage = "registration"
	StagePayment      Stage = "payment"
	StageConfirmation Stage = "confirmation"
)

// StageOrder is the order a signup flow walks through.
var StageOrder = []Stage{StageInitial, StageAccountSetup, StageRegistration, StagePayment, StageConfirmation}

func (s Stage) Index() int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s.Index() >= 0 }

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
	ComplexityExpert Complexity = "expert"
)

func (c Complexity) Weight() int {
	switch c {
	case ComplexityLow:
		return 1
	case ComplexityMedium:
		return 2
	case ComplexityHigh:
		return 3
	case ComplexityExpert:
		return 4
	}
	return 0
}

func (c Complexity) Valid() bool { return c.Weight() > 0 }

const (
	// CaptchaHumanThreshold is the likelihood above which a CAPTCHA is assumed
	// to need a person.
	CaptchaHumanThreshold = 0.8

	// DefaultConfidence stands in for a barrier nobody has scored.
	DefaultConfidence = 0.8

	// ConfidenceNudge is added when a second source confirms a barrier.
	ConfidenceNudge = 0.1
)

type Barrier struct {
	Type                      Type       `json:"type" yaml:"type"`
	Stage                     Stage      `json:"stage" yaml:"stage"`
	CaptchaLikelihood         float64    `json:"captcha_likelihood" yaml:"captcha_likelihood"`
	RequiredFields            []string   `json:"required_fields" yaml:"required_fields"`
	EstimatedMinutes          int        `json:"estimated_minutes" yaml:"estimated_minutes"`
	Complexity                Complexity `json:"complexity" yaml:"complexity"`
	HumanInterventionRequired bool       `json:"human_intervention_required" yaml:"human_intervention_required"`
	Description               string     `json:"description" yaml:"description"`
	AIConfidence              *float64   `json:"ai_confidence,omitempty" yaml:"ai_confidence,omitempty"`
}

// Confidence is the AI score, or DefaultConfidence when unscored.
func (b Barrier) Confidence() float64 {
	if b.AIConfidence == nil {
		return DefaultConfidence
	}
	return *b.AIConfidence
}

// Normalize clamps scores into [0,1] and sets the human-intervention flag
// for barriers that cannot be automated. It never clears the flag.
func Normalize(b Barrier) Barrier {
	b.CaptchaLikelihood = clamp01(b.CaptchaLikelihood)
	if b.AIConfidence != nil {
		v := clamp01(*b.AIConfidence)
		b.AIConfidence = &v
	}
	if b.EstimatedMinutes < 0 {
		b.EstimatedMinutes = 0
	}
	if !b.Complexity.Valid() {
		b.Complexity = ComplexityMedium
	}
	if b.CaptchaLikelihood > CaptchaHumanThreshold || b.Type == TypeDocumentUpload || b.Type == TypePayment {
		b.HumanInterventionRequired = true
	}
	b.RequiredFields = append([]string(nil), b.RequiredFields...)
	return b
}

func NormalizeAll(in []Barrier) []Barrier {
	out := make([]Barrier, len(in))
	for i, b := range in {
		out[i] = Normalize(b)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
