package refine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/lifeline/internal/knowledge"
	"github.com/Skufu/lifeline/internal/symptom"
)

type fakePredictor struct {
	disease string
	err     error
	calls   atomic.Int32
}

func (p *fakePredictor) Predict([]string) (string, error) {
	p.calls.Add(1)
	return p.disease, p.err
}

func testVocab(t *testing.T) *symptom.Vocabulary {
	t.Helper()
	v, err := symptom.NewVocabulary([]string{"itching", "rash", "fever", "cough"})
	require.NoError(t, err)
	return v
}

func testKB() *knowledge.Base {
	return knowledge.New(map[string][]string{
		"Flu":     {"fever", "cough"},
		"Cold":    {"cough"},
		"Measles": {"rash", "fever"},
	})
}

func newEngine(t *testing.T, p Predictor, opts ...Option) *Engine {
	t.Helper()
	e, err := New(testVocab(t), testKB(), p, opts...)
	require.NoError(t, err)
	return e
}

func TestRefine(t *testing.T) {
	tests := []struct {
		name       string
		base       []string
		additional []string
		count      int
		want       Result
	}{
		{
			name:  "ambiguous fever asks a distinguishing symptom",
			base:  []string{"fever"},
			count: 0,
			want: Result{
				Kind:           RefinementNeeded,
				Candidates:     []string{"Flu", "Measles"},
				AskSymptom:     "rash",
				Distinguishing: []string{"rash", "cough"},
				Symptoms:       []string{"fever"},
			},
		},
		{
			name:       "answered cough narrows to flu",
			base:       []string{"fever"},
			additional: []string{"cough"},
			count:      1,
			want: Result{
				Kind:     SingleDiagnosis,
				Disease:  "Flu",
				Source:   SourceKnowledgeBase,
				Symptoms: []string{"fever", "cough"},
			},
		},
		{
			name:  "cough alone asks about fever",
			base:  []string{"cough"},
			count: 2,
			want: Result{
				Kind:           RefinementNeeded,
				Candidates:     []string{"Cold", "Flu"},
				AskSymptom:     "fever",
				Distinguishing: []string{"fever"},
				Symptoms:       []string{"cough"},
			},
		},
		{
			name:  "budget exhausted returns the ensemble vote",
			base:  []string{"fever"},
			count: 3,
			want: Result{
				Kind:     SingleDiagnosis,
				Disease:  "Cold",
				Source:   SourceEnsemble,
				Symptoms: []string{"fever"},
			},
		},
		{
			name:  "no disease has every symptom",
			base:  []string{"itching", "cough"},
			count: 0,
			want: Result{
				Kind:            NoMatch,
				FallbackDisease: "Cold",
				Symptoms:        []string{"itching", "cough"},
				SuggestFallback: true,
			},
		},
		{
			name:       "unknown symptoms are dropped",
			base:       []string{"headache", "rash"},
			additional: []string{"rash"},
			count:      0,
			want: Result{
				Kind:     SingleDiagnosis,
				Disease:  "Measles",
				Source:   SourceKnowledgeBase,
				Symptoms: []string{"rash"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, &fakePredictor{disease: "Cold"})
			got, err := e.Refine(tt.base, tt.additional, tt.count)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNoValidSymptomsSkipsClassifier(t *testing.T) {
	p := &fakePredictor{disease: "Flu"}
	e := newEngine(t, p)

	for _, in := range [][]string{nil, {}, {"headache", "Fever"}} {
		got, err := e.Refine(in, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, NoValidSymptoms, got.Kind)
		assert.True(t, got.SuggestFallback)
	}
	assert.Zero(t, p.calls.Load())
}

func TestSingleMatchWinsOverVote(t *testing.T) {
	p := &fakePredictor{disease: "Cold"}
	e := newEngine(t, p)

	got, err := e.Refine([]string{"rash", "fever"}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Measles", got.Disease)
	assert.Equal(t, SourceKnowledgeBase, got.Source)
	assert.EqualValues(t, 1, p.calls.Load(), "the vote is computed every round")
}

func TestIndistinguishableCandidatesUseVote(t *testing.T) {
	kb := knowledge.New(map[string][]string{
		"Flu":        {"fever", "cough"},
		"Bronchitis": {"fever", "cough"},
	})
	e, err := New(testVocab(t), kb, &fakePredictor{disease: "Flu"})
	require.NoError(t, err)

	got, err := e.Refine([]string{"fever", "cough"}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, SingleDiagnosis, got.Kind)
	assert.Equal(t, "Flu", got.Disease)
	assert.Equal(t, SourceEnsemble, got.Source)
}

func TestKnowledgeSymptomsOutsideVocabularyAreNeverAsked(t *testing.T) {
	kb := knowledge.New(map[string][]string{
		"Flu":     {"fever", "cough", "chills"},
		"Measles": {"fever", "koplik spots"},
	})
	e, err := New(testVocab(t), kb, &fakePredictor{disease: "Flu"})
	require.NoError(t, err)

	got, err := e.Refine([]string{"fever"}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, RefinementNeeded, got.Kind)
	assert.Equal(t, []string{"cough"}, got.Distinguishing)
	assert.Equal(t, "cough", got.AskSymptom)
}

func TestRefineErrors(t *testing.T) {
	t.Run("negative count", func(t *testing.T) {
		e := newEngine(t, &fakePredictor{disease: "Flu"})
		_, err := e.Refine([]string{"fever"}, nil, -1)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("prediction failure", func(t *testing.T) {
		boom := errors.New("model exploded")
		e := newEngine(t, &fakePredictor{err: boom})
		_, err := e.Refine([]string{"fever"}, nil, 0)
		assert.ErrorIs(t, err, ErrPredictionFailure)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrResourceUnavailable)
	})

	t.Run("degraded engine", func(t *testing.T) {
		var e *Engine
		_, err := e.Refine([]string{"fever"}, nil, 0)
		assert.ErrorIs(t, err, ErrResourceUnavailable)

		_, err = e.Symptoms()
		assert.ErrorIs(t, err, ErrResourceUnavailable)
	})

	t.Run("missing resources", func(t *testing.T) {
		_, err := New(nil, testKB(), &fakePredictor{})
		assert.ErrorIs(t, err, ErrResourceUnavailable)
		_, err = New(testVocab(t), nil, &fakePredictor{})
		assert.ErrorIs(t, err, ErrResourceUnavailable)
		_, err = New(testVocab(t), testKB(), nil)
		assert.ErrorIs(t, err, ErrResourceUnavailable)
	})
}

func TestMaxRefinementsOption(t *testing.T) {
	e := newEngine(t, &fakePredictor{disease: "Measles"}, WithMaxRefinements(0))
	assert.Equal(t, 0, e.MaxRefinements())

	got, err := e.Refine([]string{"fever"}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, SingleDiagnosis, got.Kind)
	assert.Equal(t, SourceEnsemble, got.Source)

	e = newEngine(t, &fakePredictor{}, WithMaxRefinements(-4))
	assert.Equal(t, DefaultMaxRefinements, e.MaxRefinements())
}

func TestNeverAsksAtBudget(t *testing.T) {
	e := newEngine(t, &fakePredictor{disease: "Flu"})
	names := testVocab(t).Names()

	for mask := 1; mask < 1<<len(names); mask++ {
		var syms []string
		for i, n := range names {
			if mask&(1<<i) != 0 {
				syms = append(syms, n)
			}
		}
		for count := DefaultMaxRefinements; count < DefaultMaxRefinements+3; count++ {
			got, err := e.Refine(syms, nil, count)
			require.NoError(t, err)
			assert.True(t, got.Kind.Terminal(), "symptoms %v count %d gave %s", syms, count, got.Kind)
		}
	}
}

func TestSessionsTerminate(t *testing.T) {
	names := testVocab(t).Names()
	choosers := map[string]Chooser{
		"split":  SplitChooser{},
		"random": NewRandomChooser(7),
	}

	for name, c := range choosers {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, &fakePredictor{disease: "Flu"}, WithChooser(c))
			for _, start := range names {
				base := []string{start}
				var extra []string
				terminal := false
				for round := 0; round <= e.MaxRefinements(); round++ {
					got, err := e.Refine(base, extra, round)
					require.NoError(t, err)
					if got.Kind.Terminal() {
						terminal = true
						break
					}
					extra = append(extra, got.AskSymptom)
				}
				assert.True(t, terminal, "session starting with %q did not terminate", start)
			}
		})
	}
}

func TestRefineIsIdempotent(t *testing.T) {
	e := newEngine(t, &fakePredictor{disease: "Flu"})

	first, err := e.Refine([]string{"fever"}, nil, 1)
	require.NoError(t, err)
	second, err := e.Refine([]string{"fever"}, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChooserOutsideSetFallsBack(t *testing.T) {
	bogus := ChooserFunc(func(Question) string { return "itching" })
	e := newEngine(t, &fakePredictor{disease: "Flu"}, WithChooser(bogus))

	got, err := e.Refine([]string{"fever"}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "rash", got.AskSymptom)
}

func TestConcurrentRefine(t *testing.T) {
	e := newEngine(t, &fakePredictor{disease: "Flu"}, WithChooser(NewRandomChooser(1)))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, err := e.Refine([]string{"fever"}, nil, 0)
				if assert.NoError(t, err) {
					assert.Contains(t, []string{"rash", "cough"}, got.AskSymptom)
				}
			}
		}()
	}
	wg.Wait()
}

func TestResultDiagnosis(t *testing.T) {
	assert.Equal(t, "Flu", Result{Kind: SingleDiagnosis, Disease: "Flu"}.Diagnosis())
	assert.Equal(t, "Cold", Result{Kind: NoMatch, FallbackDisease: "Cold"}.Diagnosis())
	assert.Empty(t, Result{Kind: RefinementNeeded, Candidates: []string{"Flu"}}.Diagnosis())
	assert.Empty(t, Result{Kind: NoValidSymptoms}.Diagnosis())
}

func TestKind(t *testing.T) {
	assert.True(t, NoValidSymptoms.Terminal())
	assert.True(t, NoMatch.Terminal())
	assert.True(t, SingleDiagnosis.Terminal())
	assert.False(t, RefinementNeeded.Terminal())
	assert.Equal(t, "refinement_needed", RefinementNeeded.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
