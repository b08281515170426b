package ensemble

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/Skufu/lifeline/internal/symptom"
)

// Model kinds understood by LoadJSONModel.
const (
	KindLinear        = "linear"
	KindMultinomialNB = "multinomial_nb"
	KindBernoulliNB   = "bernoulli_nb"
	KindRandomForest  = "random_forest"
)

// leaf marks a terminal node in array-encoded trees.
const leaf = -1

// Validator is implemented by models that can check their shape against the
// vocabulary size at load time.
type Validator interface {
	Validate(nFeatures int) error
}

// LoadJSONModel reads an exported model artifact and returns its classifier.
func LoadJSONModel(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	c, err := DecodeJSONModel(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return c, nil
}

// DecodeJSONModel dispatches on the artifact's "kind" field.
func DecodeJSONModel(data []byte) (Classifier, error) {
	var header struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}

	switch header.Kind {
	case KindLinear:
		var m LinearModel
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode linear model: %w", err)
		}
		return &m, nil
	case KindMultinomialNB, KindBernoulliNB:
		var m NaiveBayes
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode naive bayes model: %w", err)
		}
		m.Kind = header.Kind
		m.prepare()
		return &m, nil
	case KindRandomForest:
		var m Forest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode forest model: %w", err)
		}
		return &m, nil
	case "":
		return nil, fmt.Errorf("missing model kind")
	default:
		return nil, fmt.Errorf("unsupported model kind %q", header.Kind)
	}
}

// LinearModel is a one-vs-rest linear decision function, the export format of
// a linear support vector classifier.
type LinearModel struct {
	Classes   []int       `json:"classes"`
	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

// Validate checks the coefficient matrix shape.
func (m *LinearModel) Validate(nFeatures int) error {
	if len(m.Classes) < 2 {
		return fmt.Errorf("linear model: need at least 2 classes, got %d", len(m.Classes))
	}
	binary := len(m.Classes) == 2 && len(m.Coef) == 1
	if !binary && len(m.Coef) != len(m.Classes) {
		return fmt.Errorf("linear model: %d coefficient rows for %d classes", len(m.Coef), len(m.Classes))
	}
	if len(m.Intercept) != len(m.Coef) {
		return fmt.Errorf("linear model: %d intercepts for %d rows", len(m.Intercept), len(m.Coef))
	}
	for i, row := range m.Coef {
		if len(row) != nFeatures {
			return fmt.Errorf("linear model: row %d has %d coefficients, want %d", i, len(row), nFeatures)
		}
	}
	return nil
}

// Predict returns the class with the highest decision score.
func (m *LinearModel) Predict(fv symptom.FeatureVector) (int, error) {
	if err := m.Validate(len(fv)); err != nil {
		return 0, err
	}

	scores := make([]float64, len(m.Coef))
	for k, row := range m.Coef {
		s := m.Intercept[k]
		for j, x := range fv {
			if x != 0 {
				s += row[j]
			}
		}
		scores[k] = s
	}

	if len(m.Coef) == 1 {
		if scores[0] > 0 {
			return m.Classes[1], nil
		}
		return m.Classes[0], nil
	}
	return m.Classes[argmax(scores)], nil
}

// NaiveBayes scores classes by joint log likelihood. Kind selects the
// multinomial or Bernoulli event model.
type NaiveBayes struct {
	Kind           string      `json:"kind"`
	Classes        []int       `json:"classes"`
	ClassLogPrior  []float64   `json:"class_log_prior"`
	FeatureLogProb [][]float64 `json:"feature_log_prob"`

	// log(1 - p) per feature, Bernoulli only.
	negLogProb [][]float64
}

func (m *NaiveBayes) prepare() {
	if m.Kind != KindBernoulliNB {
		return
	}
	m.negLogProb = make([][]float64, len(m.FeatureLogProb))
	for k, row := range m.FeatureLogProb {
		neg := make([]float64, len(row))
		for j, lp := range row {
			neg[j] = math.Log1p(-math.Exp(lp))
		}
		m.negLogProb[k] = neg
	}
}

// Validate checks the parameter shapes.
func (m *NaiveBayes) Validate(nFeatures int) error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("naive bayes: no classes")
	}
	if len(m.ClassLogPrior) != len(m.Classes) || len(m.FeatureLogProb) != len(m.Classes) {
		return fmt.Errorf("naive bayes: parameters do not match %d classes", len(m.Classes))
	}
	for k, row := range m.FeatureLogProb {
		if len(row) != nFeatures {
			return fmt.Errorf("naive bayes: class %d has %d feature probabilities, want %d", k, len(row), nFeatures)
		}
	}
	return nil
}

// Predict returns the class with the highest joint log likelihood.
func (m *NaiveBayes) Predict(fv symptom.FeatureVector) (int, error) {
	if err := m.Validate(len(fv)); err != nil {
		return 0, err
	}

	jll := make([]float64, len(m.Classes))
	for k := range m.Classes {
		s := m.ClassLogPrior[k]
		for j, x := range fv {
			switch {
			case x != 0:
				s += m.FeatureLogProb[k][j]
			case m.Kind == KindBernoulliNB && m.negLogProb != nil:
				s += m.negLogProb[k][j]
			case m.Kind == KindBernoulliNB:
				s += math.Log1p(-math.Exp(m.FeatureLogProb[k][j]))
			}
		}
		jll[k] = s
	}
	return m.Classes[argmax(jll)], nil
}

// Tree is an array-encoded binary decision tree. Node i is a leaf when
// ChildrenLeft[i] is -1; otherwise samples with feature <= threshold go left.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

func (t *Tree) validate(nFeatures, nClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("tree arrays have mismatched lengths")
	}
	for i := 0; i < n; i++ {
		if t.ChildrenLeft[i] == leaf {
			if len(t.Value[i]) != nClasses {
				return fmt.Errorf("leaf %d has %d values, want %d", i, len(t.Value[i]), nClasses)
			}
			continue
		}
		if t.ChildrenLeft[i] <= i || t.ChildrenLeft[i] >= n || t.ChildrenRight[i] <= i || t.ChildrenRight[i] >= n {
			return fmt.Errorf("node %d has out-of-order children", i)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d, want [0,%d)", i, t.Feature[i], nFeatures)
		}
	}
	return nil
}

// leafValue walks from the root. Validated trees only point to larger
// indices, so the walk terminates.
func (t *Tree) leafValue(fv symptom.FeatureVector) ([]float64, error) {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		f := t.Feature[node]
		if f < 0 || f >= len(fv) {
			return nil, fmt.Errorf("node %d splits on feature %d, vector has %d", node, f, len(fv))
		}
		if float64(fv[f]) <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node], nil
}

// Forest averages the normalised leaf distributions of its trees.
type Forest struct {
	Classes []int  `json:"classes"`
	Trees   []Tree `json:"trees"`
}

// Validate checks every tree.
func (m *Forest) Validate(nFeatures int) error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("forest: no classes")
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("forest: no trees")
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(nFeatures, len(m.Classes)); err != nil {
			return fmt.Errorf("forest: tree %d: %w", i, err)
		}
	}
	return nil
}

// Predict returns the class with the highest mean probability. The forest
// must have passed Validate.
func (m *Forest) Predict(fv symptom.FeatureVector) (int, error) {
	if len(m.Trees) == 0 || len(m.Classes) == 0 {
		return 0, fmt.Errorf("forest: empty model")
	}

	proba := make([]float64, len(m.Classes))
	for i := range m.Trees {
		value, err := m.Trees[i].leafValue(fv)
		if err != nil {
			return 0, fmt.Errorf("forest: tree %d: %w", i, err)
		}
		if len(value) != len(m.Classes) {
			return 0, fmt.Errorf("forest: tree %d leaf has %d values, want %d", i, len(value), len(m.Classes))
		}
		total := 0.0
		for _, v := range value {
			total += v
		}
		if total == 0 {
			continue
		}
		for k, v := range value {
			proba[k] += v / total
		}
	}
	return m.Classes[argmax(proba)], nil
}

// argmax returns the index of the largest value; the lowest index wins ties.
func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
