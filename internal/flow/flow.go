// Package flow rolls a barrier list up into a stage-ordered signup flow and
// whole-flow metrics. Everything here is a pure function of its input.
package flow

import (
	"strings"

	"github.com/camprush/camprush/internal/barriers"
)

const (
	StrategyAssisted = "assisted_automation"
	StrategyManual   = "manual_registration"

	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
	ComplexityExpert   = "expert"

	interruptionCaptchaThreshold = 0.6
	manualInterruptionLimit      = 3

	minStepProbability = 0.6
	maxStepProbability = 0.95
	hardBarrierPenalty = 0.1
)

type Step struct {
	Stage              barriers.Stage     `json:"stage"`
	Barriers           []barriers.Barrier `json:"barriers"`
	EstimatedMinutes   int                `json:"estimated_minutes"`
	AutomationFeasible bool               `json:"automation_feasible"`
	SuccessProbability float64            `json:"success_probability"`
}

type Metrics struct {
	TotalBarriers           int      `json:"total_barriers"`
	EstimatedInterruptions  int      `json:"estimated_interruptions"`
	TotalEstimatedTime      int      `json:"total_estimated_time"`
	OverallComplexity       string   `json:"overall_complexity"`
	SuccessProbability      float64  `json:"success_probability"`
	RecommendedStrategy     string   `json:"recommended_strategy"`
	Flow                    []Step   `json:"registration_flow"`
	ParentPreparationNeeded []string `json:"parent_preparation_needed"`
}

// BuildFlow groups barriers by stage in the fixed stage order. Stages with no
// barriers are left out; barriers with an unknown stage are ignored.
func BuildFlow(list []barriers.Barrier) []Step {
	var steps []Step
	for _, stage := range barriers.StageOrder {
		var in []barriers.Barrier
		for _, b := range list {
			if b.Stage == stage {
				in = append(in, b)
			}
		}
		if len(in) == 0 {
			continue
		}
		steps = append(steps, newStep(stage, in))
	}
	return steps
}

func newStep(stage barriers.Stage, in []barriers.Barrier) Step {
	s := Step{Stage: stage, Barriers: in, AutomationFeasible: true}
	var (
		confSum float64
		hard    int
	)
	for _, b := range in {
		s.EstimatedMinutes += b.EstimatedMinutes
		confSum += b.Confidence()
		if b.Complexity == barriers.ComplexityHigh || b.Complexity == barriers.ComplexityExpert {
			hard++
		}
		if b.HumanInterventionRequired {
			s.AutomationFeasible = false
		}
	}
	p := confSum/float64(len(in)) - hardBarrierPenalty*float64(hard)
	s.SuccessProbability = clamp(p, minStepProbability, maxStepProbability)
	return s
}

func Aggregate(list []barriers.Barrier) Metrics {
	steps := BuildFlow(list)
	m := Metrics{
		TotalBarriers:           len(list),
		Flow:                    steps,
		ParentPreparationNeeded: ParentPreparationNeeded(list),
	}

	weight := 0
	for _, b := range list {
		if b.HumanInterventionRequired || b.CaptchaLikelihood > interruptionCaptchaThreshold {
			m.EstimatedInterruptions++
		}
		weight += b.Complexity.Weight()
	}
	m.OverallComplexity = ComplexityBucket(weight)

	var probSum float64
	for _, s := range steps {
		m.TotalEstimatedTime += s.EstimatedMinutes
		probSum += s.SuccessProbability
	}
	if len(steps) > 0 {
		m.SuccessProbability = probSum / float64(len(steps))
	} else {
		// nothing stands in the way
		m.SuccessProbability = maxStepProbability
	}

	if m.EstimatedInterruptions > manualInterruptionLimit {
		m.RecommendedStrategy = StrategyManual
	} else {
		m.RecommendedStrategy = StrategyAssisted
	}
	return m
}

func ComplexityBucket(weight int) string {
	switch {
	case weight <= 3:
		return ComplexitySimple
	case weight <= 8:
		return ComplexityModerate
	case weight <= 15:
		return ComplexityComplex
	default:
		return ComplexityExpert
	}
}

var typePreparation = map[barriers.Type]string{
	barriers.TypeAccountCreation: "Email address and a password for a new provider account",
	barriers.TypeLogin:           "Existing provider login credentials",
	barriers.TypeCaptcha:         "Be reachable to solve a CAPTCHA while signup runs",
	barriers.TypeDocumentUpload:  "Digital copies of required documents",
	barriers.TypePayment:         "Payment card ready for checkout",
	barriers.TypeVerification:    "Access to the phone or inbox that receives verification codes",
}

var fieldPreparation = []struct {
	terms []string
	item  string
}{
	{[]string{"medical", "immunization"}, "Child's medical and immunization records"},
	{[]string{"insurance"}, "Health insurance details"},
	{[]string{"residency"}, "Proof of residency"},
	{[]string{"emergency_contact"}, "Emergency contact details"},
	{[]string{"member_id"}, "Membership number"},
	{[]string{"birth_date"}, "Child's date of birth"},
}

// ParentPreparationNeeded lists what the parent should have at hand, in flow
// order, without duplicates.
func ParentPreparationNeeded(list []barriers.Barrier) []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(item string) {
		if item != "" && !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	for _, step := range BuildFlow(list) {
		for _, b := range step.Barriers {
			add(typePreparation[b.Type])
			for _, f := range b.RequiredFields {
				f = strings.ToLower(f)
				for _, fp := range fieldPreparation {
					for _, term := range fp.terms {
						if strings.Contains(f, term) {
							add(fp.item)
						}
					}
				}
			}
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
