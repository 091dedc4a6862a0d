package barriers

import (
	"context"
	"errors"
	"sort"

	"github.com/camprush/camprush/internal/logger"
)

type OutcomeKind string

const (
	OutcomeOK       OutcomeKind = "ok"
	OutcomeDegraded OutcomeKind = "degraded"
	OutcomeFatal    OutcomeKind = "fatal"
)

// Outcome says how a plan was produced. Degraded plans are usable; they just
// lack the enrichment that was asked for.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

func (o Outcome) Degraded() bool { return o.Kind == OutcomeDegraded }
func (o Outcome) Fatal() bool    { return o.Kind == OutcomeFatal }

var ErrInvalidProviderURL = errors.New("invalid provider url")

//go:generate mockgen -source=planner.go -destination=analyzer_mock.go -package=barriers

// Analyzer inspects a live provider page and reports the barriers it sees.
type Analyzer interface {
	Analyze(ctx context.Context, providerURL string) ([]Barrier, error)
}

type Planner struct {
	log        *logger.Logger
	classifier *Classifier
	analyzer   Analyzer
}

// NewPlanner accepts a nil analyzer; AI-enriched requests then degrade.
func NewPlanner(log *logger.Logger, classifier *Classifier, analyzer Analyzer) *Planner {
	return &Planner{
		log:        log.With("component", "barrier_planner"),
		classifier: classifier,
		analyzer:   analyzer,
	}
}

// Plan returns the provider's barriers in stage order together with the
// profile name. Enrichment failures fall back to the baseline list.
func (p *Planner) Plan(ctx context.Context, providerURL string, useAI bool) ([]Barrier, string, Outcome) {
	if hostOf(providerURL) == "" {
		return nil, "", Outcome{Kind: OutcomeFatal, Reason: "provider url has no host", Err: ErrInvalidProviderURL}
	}

	profile := p.classifier.Classify(providerURL)
	base := NormalizeAll(profile.Barriers)
	sortByStage(base)

	if !useAI {
		return base, profile.Name, Outcome{Kind: OutcomeOK}
	}
	if p.analyzer == nil {
		return base, profile.Name, Outcome{Kind: OutcomeDegraded, Reason: "ai analysis not configured"}
	}

	found, err := p.analyzer.Analyze(ctx, providerURL)
	if err != nil {
		p.log.Warn("barrier enrichment failed, using baseline",
			"provider", profile.Name,
			"error", err,
		)
		return base, profile.Name, Outcome{Kind: OutcomeDegraded, Reason: "ai analysis unavailable", Err: err}
	}
	return Merge(base, found), profile.Name, Outcome{Kind: OutcomeOK}
}

// Merge adds barriers from extra whose (type, stage) is not already present.
// A match instead raises the existing barrier's confidence by ConfidenceNudge.
func Merge(base, extra []Barrier) []Barrier {
	out := NormalizeAll(base)
	for _, b := range extra {
		b = Normalize(b)
		if !b.Type.Valid() || !b.Stage.Valid() {
			continue
		}
		if i := indexOf(out, b.Type, b.Stage); i >= 0 {
			v := out[i].Confidence() + ConfidenceNudge
			if v > 1 {
				v = 1
			}
			out[i].AIConfidence = &v
			continue
		}
		out = append(out, b)
	}
	sortByStage(out)
	return out
}

func indexOf(list []Barrier, t Type, s Stage) int {
	for i, b := range list {
		if b.Type == t && b.Stage == s {
			return i
		}
	}
	return -1
}

func sortByStage(list []Barrier) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Stage.Index() < list[j].Stage.Index()
	})
}
