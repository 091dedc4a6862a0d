package barriers

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/camprush/camprush/internal/clients/openai"
	"github.com/camprush/camprush/internal/logger"
)

func ptr(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	c := DefaultClassifier()
	tests := []struct {
		url  string
		want string
	}{
		{"https://register.vscloud.net/camps/summer", "vscloud"},
		{"https://app.communitypass.net/org/123", "community_pass"},
		{"https://anc.apm.activecommunities.com/springfield", "active_communities"},
		{"https://www.springfieldparksandrec.org/camps", "municipal_parks"},
		{"https://ymcanyc.org/camps", "ymca"},
		{"https://campwildwood.com/enroll", GenericProvider},
		{"ymcasf.org/daycamp", "ymca"},
		{"https://www.ymcarec.org/summer", "ymca"},
		{"https://rec.springfield.gov/camps", "municipal_parks"},
		{"https://register.parks.austin.gov", "municipal_parks"},
		{"https://fabrec.com/camps", GenericProvider},
		{"https://kidsparks.io", GenericProvider},
		{"", GenericProvider},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.url).Name; got != tt.want {
			t.Errorf("Classify(%q): want %s, got %s", tt.url, tt.want, got)
		}
	}
}

func TestLoadClassifierFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	table := `
providers:
  - name: test_camps
    patterns: ["Test-Camps"]
    barriers:
      - type: captcha
        stage: registration
        captcha_likelihood: 0.95
        estimated_minutes: 2
        complexity: high
  - name: generic
    barriers:
      - type: login
        stage: initial
        estimated_minutes: 1
        complexity: low
`
	if err := os.WriteFile(path, []byte(table), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadClassifier(path)
	if err != nil {
		t.Fatalf("LoadClassifier: %v", err)
	}
	p := c.Classify("https://www.test-camps.org/summer")
	if p.Name != "test_camps" {
		t.Fatalf("want test_camps, got %s", p.Name)
	}
	if !p.Barriers[0].HumanInterventionRequired {
		t.Error("loaded barriers must be normalized")
	}
	if c.Classify("https://vscloud.net").Name != GenericProvider {
		t.Error("defaults must not leak into a custom table")
	}
}

func TestNewClassifierRejectsBadTables(t *testing.T) {
	if _, err := NewClassifier([]Profile{{Name: "x"}}); err == nil {
		t.Error("table without generic should fail")
	}
	bad := []Profile{{Name: GenericProvider, Barriers: []Barrier{{Type: "teleport", Stage: StageInitial}}}}
	if _, err := NewClassifier(bad); err == nil {
		t.Error("unknown barrier type should fail")
	}
}

func TestNormalizeHumanIntervention(t *testing.T) {
	tests := []struct {
		name string
		in   Barrier
		want bool
	}{
		{"captcha above threshold", Barrier{Type: TypeCaptcha, CaptchaLikelihood: 0.81}, true},
		{"captcha at threshold", Barrier{Type: TypeCaptcha, CaptchaLikelihood: 0.8}, false},
		{"document upload", Barrier{Type: TypeDocumentUpload}, true},
		{"payment", Barrier{Type: TypePayment}, true},
		{"login", Barrier{Type: TypeLogin, CaptchaLikelihood: 0.1}, false},
		{"flag is never cleared", Barrier{Type: TypeVerification, HumanInterventionRequired: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in).HumanInterventionRequired; got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}

	b := Normalize(Barrier{Type: TypeLogin, CaptchaLikelihood: 1.7, AIConfidence: ptr(-2)})
	if b.CaptchaLikelihood != 1 || *b.AIConfidence != 0 || b.Complexity != ComplexityMedium {
		t.Errorf("clamping: %+v", b)
	}
}

func TestMerge(t *testing.T) {
	base := []Barrier{
		{Type: TypeAccountCreation, Stage: StageAccountSetup, Complexity: ComplexityMedium},
		{Type: TypeCaptcha, Stage: StageRegistration, Complexity: ComplexityMedium},
		{Type: TypePayment, Stage: StagePayment, Complexity: ComplexityMedium, AIConfidence: ptr(0.95)},
	}
	extra := []Barrier{
		{Type: TypeCaptcha, Stage: StageRegistration, AIConfidence: ptr(0.3)},
		{Type: TypeVerification, Stage: StageAccountSetup, AIConfidence: ptr(0.7)},
		{Type: TypePayment, Stage: StagePayment},
		{Type: "unknown", Stage: StagePayment},
	}

	got := Merge(base, extra)
	if len(got) != 4 {
		t.Fatalf("want 4 barriers, got %d: %+v", len(got), got)
	}
	wantOrder := []Type{TypeAccountCreation, TypeVerification, TypeCaptcha, TypePayment}
	for i, typ := range wantOrder {
		if got[i].Type != typ {
			t.Errorf("position %d: want %s, got %s", i, typ, got[i].Type)
		}
	}
	if c := got[2].Confidence(); math.Abs(c-0.9) > 1e-9 {
		t.Errorf("matched captcha should be nudged from baseline to 0.9, got %v", c)
	}
	if c := got[3].Confidence(); c != 1 {
		t.Errorf("nudge must cap at 1.0, got %v", c)
	}
	if base[1].AIConfidence != nil {
		t.Error("Merge must not mutate its input")
	}
}

func TestPlannerOutcomes(t *testing.T) {
	ctrl := gomock.NewController(t)
	analyzer := NewMockAnalyzer(ctrl)
	p := NewPlanner(logger.Nop(), DefaultClassifier(), analyzer)
	ctx := context.Background()
	url := "https://anc.apm.activecommunities.com/camps"

	t.Run("baseline", func(t *testing.T) {
		list, provider, out := p.Plan(ctx, url, false)
		if out.Kind != OutcomeOK || provider != "active_communities" || len(list) != 3 {
			t.Fatalf("got %v %s %d", out, provider, len(list))
		}
	})

	t.Run("enriched", func(t *testing.T) {
		analyzer.EXPECT().Analyze(gomock.Any(), url).Return([]Barrier{
			{Type: TypeDocumentUpload, Stage: StageRegistration, AIConfidence: ptr(0.6)},
		}, nil)
		list, _, out := p.Plan(ctx, url, true)
		if out.Kind != OutcomeOK || len(list) != 4 {
			t.Fatalf("got %v with %d barriers", out, len(list))
		}
	})

	t.Run("analyzer failure degrades", func(t *testing.T) {
		boom := errors.New("vision down")
		analyzer.EXPECT().Analyze(gomock.Any(), url).Return(nil, boom)
		list, _, out := p.Plan(ctx, url, true)
		if !out.Degraded() || !errors.Is(out.Err, boom) || len(list) != 3 {
			t.Fatalf("got %+v with %d barriers", out, len(list))
		}
	})

	t.Run("no analyzer degrades", func(t *testing.T) {
		bare := NewPlanner(logger.Nop(), DefaultClassifier(), nil)
		_, _, out := bare.Plan(ctx, url, true)
		if !out.Degraded() {
			t.Fatalf("want degraded, got %+v", out)
		}
	})

	t.Run("missing host is fatal", func(t *testing.T) {
		_, _, out := p.Plan(ctx, "   ", false)
		if !out.Fatal() || !errors.Is(out.Err, ErrInvalidProviderURL) {
			t.Fatalf("want fatal, got %+v", out)
		}
	})
}

func TestCertaintyAdvance(t *testing.T) {
	tests := []struct {
		from    Certainty
		ev      Evidence
		want    Certainty
		wantErr bool
	}{
		{CertaintyEstimated, EvidenceLiveInspection, CertaintyVerified, false},
		{CertaintyEstimated, EvidenceUserResearch, CertaintyVerified, false},
		{CertaintyEstimated, EvidenceHumanSignoff, CertaintyEstimated, true},
		{CertaintyVerified, EvidenceHumanSignoff, CertaintyConfirmed, false},
		{CertaintyVerified, EvidenceLiveInspection, CertaintyVerified, true},
		{CertaintyConfirmed, EvidenceHumanSignoff, CertaintyConfirmed, true},
	}
	for _, tt := range tests {
		got, err := tt.from.Advance(tt.ev)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("%s + %s: got %s, %v", tt.from, tt.ev, got, err)
		}
		if err != nil && !errors.Is(err, ErrCertaintyTransition) {
			t.Errorf("error should wrap ErrCertaintyTransition: %v", err)
		}
	}
}

type fakeShots struct{ err error }

func (f fakeShots) Screenshot(context.Context, string) ([]byte, error) {
	return []byte{0xff, 0xd8, 0xff}, f.err
}

type fakeLLM struct {
	obj    map[string]any
	images int
}

func (f *fakeLLM) GenerateJSONWithImages(_ context.Context, _, _ string, images []openai.ImageInput, _ string, _ map[string]any) (map[string]any, error) {
	f.images = len(images)
	return f.obj, nil
}

func TestVisionAnalyzer(t *testing.T) {
	llm := &fakeLLM{obj: map[string]any{
		"barriers": []any{
			map[string]any{"type": "captcha", "stage": "registration", "captcha_likelihood": 0.92,
				"required_fields": []any{}, "estimated_minutes": 2, "complexity": "high",
				"description": "hCaptcha", "confidence": 0.7},
			map[string]any{"type": "laser_maze", "stage": "registration", "confidence": 0.9},
		},
	}}
	a := NewVisionAnalyzer(fakeShots{}, llm)
	got, err := a.Analyze(context.Background(), "https://camps.example.org")
	if err != nil {
		t.Fatal(err)
	}
	if llm.images != 1 {
		t.Errorf("screenshot not attached")
	}
	if len(got) != 1 || !got[0].HumanInterventionRequired || got[0].Confidence() != 0.7 {
		t.Errorf("unexpected barriers: %+v", got)
	}

	if _, err := NewVisionAnalyzer(fakeShots{err: errors.New("no chrome")}, llm).Analyze(context.Background(), "https://x.org"); err == nil {
		t.Error("screenshot failure should surface")
	}
}
