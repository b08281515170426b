// Package ensemble combines three independently trained classifiers into a
// single disease prediction by majority vote.
package ensemble

import (
	"errors"
	"fmt"

	"github.com/Skufu/lifeline/internal/symptom"
)

// ErrNoFeatures is returned when none of the symptoms are in the vocabulary.
var ErrNoFeatures = errors.New("ensemble: feature vector has no present symptoms")

// Classifier maps a feature vector to a raw label code.
type Classifier interface {
	Predict(fv symptom.FeatureVector) (int, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(fv symptom.FeatureVector) (int, error)

// Predict calls f.
func (f ClassifierFunc) Predict(fv symptom.FeatureVector) (int, error) {
	return f(fv)
}

// LabelDecoder turns a label code into a disease name.
type LabelDecoder interface {
	Decode(code int) (string, error)
}

// Member is a named ensemble participant.
type Member struct {
	Name       string
	Classifier Classifier
}

// Vote is one member's raw output.
type Vote struct {
	Member string `json:"member"`
	Code   int    `json:"code"`
}

// Prediction is the decoded ensemble decision together with the raw votes.
type Prediction struct {
	Disease string `json:"disease"`
	Code    int    `json:"code"`
	Votes   []Vote `json:"votes"`
}

// Ensemble is read-only after construction and safe for concurrent use as long
// as its members are.
type Ensemble struct {
	vocab   *symptom.Vocabulary
	decoder LabelDecoder
	members []Member
}

// New creates an Ensemble over exactly three members.
func New(vocab *symptom.Vocabulary, decoder LabelDecoder, members []Member) (*Ensemble, error) {
	if vocab == nil {
		return nil, fmt.Errorf("ensemble: vocabulary is required")
	}
	if decoder == nil {
		return nil, fmt.Errorf("ensemble: label decoder is required")
	}
	if len(members) != 3 {
		return nil, fmt.Errorf("ensemble: need exactly 3 classifiers, got %d", len(members))
	}
	for i, m := range members {
		if m.Classifier == nil {
			return nil, fmt.Errorf("ensemble: member %d (%q) has no classifier", i, m.Name)
		}
	}

	ms := make([]Member, len(members))
	copy(ms, members)
	return &Ensemble{vocab: vocab, decoder: decoder, members: ms}, nil
}

// Members returns the member names in vote order.
func (e *Ensemble) Members() []string {
	names := make([]string, len(e.members))
	for i, m := range e.members {
		names[i] = m.Name
	}
	return names
}

// Predict returns the disease chosen by majority vote.
func (e *Ensemble) Predict(symptoms []string) (string, error) {
	p, err := e.Vote(symptoms)
	if err != nil {
		return "", err
	}
	return p.Disease, nil
}

// Vote runs every member on the same feature vector, takes the mode of their
// codes and decodes it.
func (e *Ensemble) Vote(symptoms []string) (Prediction, error) {
	fv := e.vocab.FeatureVector(symptoms)
	if fv.Ones() == 0 {
		return Prediction{}, ErrNoFeatures
	}

	votes := make([]Vote, 0, len(e.members))
	codes := make([]int, 0, len(e.members))
	for _, m := range e.members {
		code, err := m.Classifier.Predict(fv)
		if err != nil {
			return Prediction{}, fmt.Errorf("ensemble: classifier %q: %w", m.Name, err)
		}
		votes = append(votes, Vote{Member: m.Name, Code: code})
		codes = append(codes, code)
	}

	winner := Mode(codes)
	disease, err := e.decoder.Decode(winner)
	if err != nil {
		return Prediction{}, fmt.Errorf("ensemble: decode label %d: %w", winner, err)
	}

	return Prediction{Disease: disease, Code: winner, Votes: votes}, nil
}

// Mode returns the most frequent code. When several codes share the highest
// count the smallest one wins, so a three-way disagreement resolves to the
// lowest label code.
func Mode(codes []int) int {
	counts := make(map[int]int, len(codes))
	for _, c := range codes {
		counts[c]++
	}

	best, bestCount := 0, 0
	first := true
	for code, n := range counts {
		if first || n > bestCount || (n == bestCount && code < best) {
			best, bestCount = code, n
			first = false
		}
	}
	return best
}
