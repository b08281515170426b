package ensemble

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/lifeline/internal/symptom"
)

// Feature order for every fixture: itching, rash, fever, cough.
var (
	fever      = symptom.FeatureVector{0, 0, 1, 0}
	feverCough = symptom.FeatureVector{0, 0, 1, 1}
	cough      = symptom.FeatureVector{0, 0, 0, 1}
	itching    = symptom.FeatureVector{1, 0, 0, 0}
	rash       = symptom.FeatureVector{0, 1, 0, 0}
)

const linearJSON = `{
  "kind": "linear",
  "classes": [0, 1, 2],
  "coef": [[0, 0, -1, 1], [0, 0, 1, 1], [0, 1, 1, -1]],
  "intercept": [0, -0.5, 0]
}`

const forestJSON = `{
  "kind": "random_forest",
  "classes": [0, 1, 2],
  "trees": [
    {
      "children_left":  [1, -1, 3, -1, -1],
      "children_right": [2, -1, 4, -1, -1],
      "feature":        [2, -2, 3, -2, -2],
      "threshold":      [0.5, -2, 0.5, -2, -2],
      "value": [[1, 1, 1], [3, 0, 0], [1, 1, 1], [0, 0, 4], [0, 5, 0]]
    }
  ]
}`

func predict(t *testing.T, c Classifier, fv symptom.FeatureVector) int {
	t.Helper()
	code, err := c.Predict(fv)
	require.NoError(t, err)
	return code
}

func TestLinearModel(t *testing.T) {
	c, err := DecodeJSONModel([]byte(linearJSON))
	require.NoError(t, err)
	require.NoError(t, c.(Validator).Validate(4))

	assert.Equal(t, 2, predict(t, c, fever))
	assert.Equal(t, 1, predict(t, c, feverCough))
	assert.Equal(t, 0, predict(t, c, cough))

	_, err = c.Predict(symptom.FeatureVector{1, 0})
	assert.Error(t, err)
}

func TestLinearModelBinaryAndTies(t *testing.T) {
	binary := &LinearModel{Classes: []int{3, 7}, Coef: [][]float64{{1, 0, 0, 0}}, Intercept: []float64{-0.5}}
	assert.Equal(t, 7, predict(t, binary, itching))
	assert.Equal(t, 3, predict(t, binary, rash))

	flat := &LinearModel{
		Classes:   []int{0, 1, 2},
		Coef:      [][]float64{{0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}},
		Intercept: []float64{1, 1, 1},
	}
	assert.Equal(t, 0, predict(t, flat, fever))
}

func TestNaiveBayes(t *testing.T) {
	lg := math.Log
	params := func(kind string) *NaiveBayes {
		m := &NaiveBayes{
			Kind:          kind,
			Classes:       []int{0, 1},
			ClassLogPrior: []float64{lg(0.5), lg(0.5)},
			FeatureLogProb: [][]float64{
				{lg(0.9), lg(0.5), lg(0.5), lg(0.5)},
				{lg(0.5), lg(0.5), lg(0.5), lg(0.5)},
			},
		}
		m.prepare()
		return m
	}

	// Absent features only count for the Bernoulli event model.
	assert.Equal(t, 0, predict(t, params(KindMultinomialNB), fever))
	assert.Equal(t, 1, predict(t, params(KindBernoulliNB), fever))
	assert.Equal(t, 0, predict(t, params(KindMultinomialNB), itching))
	assert.Equal(t, 0, predict(t, params(KindBernoulliNB), itching))

	unprepared := params(KindBernoulliNB)
	unprepared.negLogProb = nil
	assert.Equal(t, 1, predict(t, unprepared, fever))

	bad := params(KindMultinomialNB)
	bad.ClassLogPrior = bad.ClassLogPrior[:1]
	_, err := bad.Predict(fever)
	assert.Error(t, err)
}

func TestForest(t *testing.T) {
	c, err := DecodeJSONModel([]byte(forestJSON))
	require.NoError(t, err)
	require.NoError(t, c.(Validator).Validate(4))

	assert.Equal(t, 2, predict(t, c, fever))
	assert.Equal(t, 1, predict(t, c, feverCough))
	assert.Equal(t, 0, predict(t, c, rash))

	f := c.(*Forest)
	f.Trees = append(f.Trees, Tree{
		ChildrenLeft:  []int{-1},
		ChildrenRight: []int{-1},
		Feature:       []int{-2},
		Threshold:     []float64{-2},
		Value:         [][]float64{{0, 1, 0}},
	})
	// 1.0 for class 0 and 1.0 for class 1: the lower class wins.
	assert.Equal(t, 0, predict(t, f, rash))
}

func TestForestValidate(t *testing.T) {
	c, err := DecodeJSONModel([]byte(forestJSON))
	require.NoError(t, err)

	assert.Error(t, c.(Validator).Validate(3), "feature 3 is out of range for 3 features")

	f := c.(*Forest)
	f.Trees[0].ChildrenLeft[2] = 1
	assert.Error(t, f.Validate(4), "children must point forward")
}

func TestDecodeJSONModelErrors(t *testing.T) {
	for name, data := range map[string]string{
		"not json":    `nope`,
		"no kind":     `{"classes":[0]}`,
		"unsupported": `{"kind":"gradient_boosting"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeJSONModel([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadJSONModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svm_model.json")
	require.NoError(t, os.WriteFile(path, []byte(linearJSON), 0o644))

	c, err := LoadJSONModel(path)
	require.NoError(t, err)
	assert.IsType(t, &LinearModel{}, c)

	_, err = LoadJSONModel(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
