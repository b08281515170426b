// Package refine decides, one round at a time, whether the symptoms gathered
// so far are enough to commit to a diagnosis or which symptom to ask about
// next.
package refine

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Skufu/lifeline/internal/knowledge"
	"github.com/Skufu/lifeline/internal/symptom"
)

// DefaultMaxRefinements bounds the number of follow-up questions.
const DefaultMaxRefinements = 3

// Predictor returns the ensemble's disease for a filtered symptom set.
type Predictor interface {
	Predict(symptoms []string) (string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRefinements sets how many rounds may ask for more symptoms before
// the ensemble vote is returned as is. Negative values are ignored.
func WithMaxRefinements(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRefinements = n
		}
	}
}

// WithChooser sets the strategy for picking the next symptom.
func WithChooser(c Chooser) Option {
	return func(e *Engine) {
		if c != nil {
			e.chooser = c
		}
	}
}

// WithLogger sets the logger used for per-round debug output.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine is immutable after New and safe for concurrent use when its
// predictor and chooser are.
type Engine struct {
	vocab          *symptom.Vocabulary
	kb             *knowledge.Base
	predictor      Predictor
	maxRefinements int
	chooser        Chooser
	log            *logrus.Logger
}

// New creates an Engine. It fails with ErrResourceUnavailable when any of the
// three resources is missing.
func New(vocab *symptom.Vocabulary, kb *knowledge.Base, predictor Predictor, opts ...Option) (*Engine, error) {
	if vocab == nil || kb == nil || predictor == nil {
		return nil, ErrResourceUnavailable
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	e := &Engine{
		vocab:          vocab,
		kb:             kb,
		predictor:      predictor,
		maxRefinements: DefaultMaxRefinements,
		chooser:        SplitChooser{},
		log:            discard,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// MaxRefinements returns the configured refinement budget.
func (e *Engine) MaxRefinements() int {
	if e == nil {
		return DefaultMaxRefinements
	}
	return e.maxRefinements
}

// Symptoms returns the vocabulary in training order.
func (e *Engine) Symptoms() ([]string, error) {
	if e == nil {
		return nil, ErrResourceUnavailable
	}
	return e.vocab.Names(), nil
}

// Refine runs one round. base and additional are merged; names outside the
// vocabulary are dropped. refinementCount is the number of rounds that have
// already asked for a symptom.
func (e *Engine) Refine(base, additional []string, refinementCount int) (Result, error) {
	if e == nil {
		return Result{}, ErrResourceUnavailable
	}
	if refinementCount < 0 {
		return Result{}, invalidInput("refinement count must be >= 0, got %d", refinementCount)
	}

	filtered := e.vocab.Filter(base, additional)
	log := e.log.WithFields(logrus.Fields{
		"symptoms":         filtered,
		"refinement_count": refinementCount,
	})

	if len(filtered) == 0 {
		log.Debug("no valid symptoms")
		return Result{Kind: NoValidSymptoms, SuggestFallback: true}, nil
	}

	disease, err := e.predictor.Predict(filtered)
	if err != nil {
		return Result{}, predictionFailure(err)
	}

	candidates := e.kb.DiseasesMatchingAll(filtered)
	log = log.WithFields(logrus.Fields{"prediction": disease, "candidates": len(candidates)})

	switch {
	case len(candidates) == 0:
		log.Debug("no knowledge base match")
		return Result{
			Kind:            NoMatch,
			FallbackDisease: disease,
			Symptoms:        filtered,
			SuggestFallback: true,
		}, nil
	case len(candidates) == 1:
		log.Debug("single knowledge base match")
		return diagnosis(candidates[0], SourceKnowledgeBase, filtered), nil
	case refinementCount >= e.maxRefinements:
		log.Debug("refinement budget exhausted")
		return diagnosis(disease, SourceEnsemble, filtered), nil
	}

	q := e.question(candidates, filtered)
	if len(q.Symptoms) == 0 {
		log.Debug("candidates cannot be told apart")
		return diagnosis(disease, SourceEnsemble, filtered), nil
	}

	ask := e.chooser.Choose(q)
	if _, ok := q.Coverage[ask]; !ok {
		log.WithField("chosen", ask).Warn("chooser returned a symptom outside the distinguishing set")
		ask = q.Symptoms[0]
	}

	log.WithField("ask", ask).Debug("refinement needed")
	return Result{
		Kind:           RefinementNeeded,
		Candidates:     candidates,
		AskSymptom:     ask,
		Distinguishing: q.Symptoms,
		Symptoms:       filtered,
	}, nil
}

// question collects the candidates' symptoms not yet reported, in vocabulary
// order, with how many candidates have each.
func (e *Engine) question(candidates, filtered []string) Question {
	have := make(map[string]struct{}, len(filtered))
	for _, s := range filtered {
		have[s] = struct{}{}
	}

	groups := make([][]string, 0, len(candidates))
	for _, d := range candidates {
		groups = append(groups, e.kb.SymptomsOf(d))
	}

	var distinguishing []string
	coverage := make(map[string]int)
	for _, s := range e.vocab.Filter(groups...) {
		if _, ok := have[s]; ok {
			continue
		}
		distinguishing = append(distinguishing, s)
		for _, d := range candidates {
			if e.kb.HasSymptom(d, s) {
				coverage[s]++
			}
		}
	}

	return Question{Candidates: candidates, Symptoms: distinguishing, Coverage: coverage}
}

func diagnosis(disease, source string, filtered []string) Result {
	return Result{Kind: SingleDiagnosis, Disease: disease, Source: source, Symptoms: filtered}
}
