package flow

import (
	"math"
	"reflect"
	"testing"

	"github.com/camprush/camprush/internal/barriers"
)

func ptr(v float64) *float64 { return &v }

func TestInterruptionCounting(t *testing.T) {
	list := []barriers.Barrier{
		{Type: barriers.TypeLogin, Stage: barriers.StageInitial, HumanInterventionRequired: true, Complexity: barriers.ComplexityLow},
		{Type: barriers.TypeCaptcha, Stage: barriers.StageRegistration, CaptchaLikelihood: 0.9, Complexity: barriers.ComplexityLow},
		{Type: barriers.TypeCaptcha, Stage: barriers.StageRegistration, CaptchaLikelihood: 0.2, Complexity: barriers.ComplexityLow},
	}
	if got := Aggregate(list).EstimatedInterruptions; got != 2 {
		t.Errorf("want 2 interruptions, got %d", got)
	}
}

func TestComplexityBucket(t *testing.T) {
	list := []barriers.Barrier{
		{Type: barriers.TypeLogin, Stage: barriers.StageInitial, Complexity: barriers.ComplexityHigh},
		{Type: barriers.TypeCaptcha, Stage: barriers.StageRegistration, Complexity: barriers.ComplexityHigh},
		{Type: barriers.TypePayment, Stage: barriers.StagePayment, Complexity: barriers.ComplexityMedium},
	}
	if got := Aggregate(list).OverallComplexity; got != ComplexityModerate {
		t.Errorf("3+3+2=8 should be moderate, got %s", got)
	}

	tests := map[int]string{0: ComplexitySimple, 3: ComplexitySimple, 4: ComplexityModerate, 8: ComplexityModerate, 9: ComplexityComplex, 15: ComplexityComplex, 16: ComplexityExpert}
	for w, want := range tests {
		if got := ComplexityBucket(w); got != want {
			t.Errorf("ComplexityBucket(%d): want %s, got %s", w, want, got)
		}
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	list := barriers.DefaultClassifier().Classify("https://app.communitypass.net").Barriers
	a := Aggregate(list)
	b := Aggregate(list)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Aggregate is not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestBuildFlowOrdersStages(t *testing.T) {
	list := []barriers.Barrier{
		{Type: barriers.TypePayment, Stage: barriers.StagePayment, EstimatedMinutes: 3},
		{Type: barriers.TypeLogin, Stage: barriers.StageInitial, EstimatedMinutes: 1},
		{Type: barriers.TypeCaptcha, Stage: barriers.StageRegistration, EstimatedMinutes: 2},
		{Type: barriers.TypeVerification, Stage: barriers.StageInitial, EstimatedMinutes: 2, HumanInterventionRequired: true},
	}
	steps := BuildFlow(list)
	want := []barriers.Stage{barriers.StageInitial, barriers.StageRegistration, barriers.StagePayment}
	if len(steps) != len(want) {
		t.Fatalf("want %d steps, got %d", len(want), len(steps))
	}
	for i, s := range steps {
		if s.Stage != want[i] {
			t.Errorf("step %d: want %s, got %s", i, want[i], s.Stage)
		}
	}
	if steps[0].EstimatedMinutes != 3 || steps[0].AutomationFeasible {
		t.Errorf("initial step: %+v", steps[0])
	}
	if got := Aggregate(list).TotalEstimatedTime; got != 8 {
		t.Errorf("total time: want 8, got %d", got)
	}
}

func TestSuccessProbability(t *testing.T) {
	list := []barriers.Barrier{
		// step 1: mean(0.8 baseline) = 0.8
		{Type: barriers.TypeLogin, Stage: barriers.StageInitial, Complexity: barriers.ComplexityLow},
		// step 2: mean(0.9, 0.7) - 0.2 = 0.6
		{Type: barriers.TypeCaptcha, Stage: barriers.StageRegistration, Complexity: barriers.ComplexityHigh, AIConfidence: ptr(0.9)},
		{Type: barriers.TypeDocumentUpload, Stage: barriers.StageRegistration, Complexity: barriers.ComplexityExpert, AIConfidence: ptr(0.7)},
		// step 3: 1.0 clamps to 0.95
		{Type: barriers.TypePayment, Stage: barriers.StagePayment, Complexity: barriers.ComplexityMedium, AIConfidence: ptr(1.0)},
	}
	m := Aggregate(list)
	want := (0.8 + 0.6 + 0.95) / 3
	if math.Abs(m.SuccessProbability-want) > 1e-9 {
		t.Errorf("want %.4f, got %.4f", want, m.SuccessProbability)
	}
	for _, s := range m.Flow {
		if s.SuccessProbability < 0.6 || s.SuccessProbability > 0.95 {
			t.Errorf("step %s out of range: %v", s.Stage, s.SuccessProbability)
		}
	}
}

func TestRecommendedStrategy(t *testing.T) {
	var list []barriers.Barrier
	for i := 0; i < 3; i++ {
		list = append(list, barriers.Barrier{Type: barriers.TypePayment, Stage: barriers.StagePayment, HumanInterventionRequired: true})
	}
	if got := Aggregate(list).RecommendedStrategy; got != StrategyAssisted {
		t.Errorf("3 interruptions: want %s, got %s", StrategyAssisted, got)
	}
	list = append(list, barriers.Barrier{Type: barriers.TypeCaptcha, Stage: barriers.StageRegistration, CaptchaLikelihood: 0.7})
	if got := Aggregate(list).RecommendedStrategy; got != StrategyManual {
		t.Errorf("4 interruptions: want %s, got %s", StrategyManual, got)
	}
}

func TestEmptyList(t *testing.T) {
	m := Aggregate(nil)
	if m.TotalBarriers != 0 || m.OverallComplexity != ComplexitySimple || m.SuccessProbability != 0.95 || len(m.Flow) != 0 {
		t.Errorf("unexpected metrics for empty list: %+v", m)
	}
	if m.ParentPreparationNeeded == nil {
		t.Error("preparation list should be empty, not nil")
	}
}

func TestParentPreparationNeeded(t *testing.T) {
	list := []barriers.Barrier{
		{Type: barriers.TypePayment, Stage: barriers.StagePayment, RequiredFields: []string{"card_number", "emergency_contact"}},
		{Type: barriers.TypeDocumentUpload, Stage: barriers.StageRegistration, RequiredFields: []string{"medical_form", "immunization_record"}},
		{Type: barriers.TypeLogin, Stage: barriers.StageInitial},
		{Type: barriers.TypePayment, Stage: barriers.StagePayment},
	}
	want := []string{
		"Existing provider login credentials",
		"Digital copies of required documents",
		"Child's medical and immunization records",
		"Payment card ready for checkout",
		"Emergency contact details",
	}
	if got := ParentPreparationNeeded(list); !reflect.DeepEqual(got, want) {
		t.Errorf("want %v\ngot  %v", want, got)
	}
}
