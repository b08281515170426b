// Package symptom holds the closed symptom vocabulary that defines the
// classifiers' feature space.
package symptom

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FeatureVector is a binary presence vector aligned with a Vocabulary.
type FeatureVector []uint8

// Float32 converts the vector for tensor-based backends.
func (fv FeatureVector) Float32() []float32 {
	out := make([]float32, len(fv))
	for i, v := range fv {
		out[i] = float32(v)
	}
	return out
}

// Ones returns the number of present symptoms.
func (fv FeatureVector) Ones() int {
	n := 0
	for _, v := range fv {
		if v != 0 {
			n++
		}
	}
	return n
}

// Vocabulary is the ordered set of known symptom names. The order is the one
// used at training time and is never re-sorted. A Vocabulary is immutable
// after construction and safe for concurrent use.
type Vocabulary struct {
	names []string
	index map[string]int
}

// NewVocabulary builds a vocabulary from names in training order.
func NewVocabulary(names []string) (*Vocabulary, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("vocabulary: no symptoms")
	}

	v := &Vocabulary{
		names: make([]string, 0, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("vocabulary: empty symptom name at position %d", i)
		}
		if _, dup := v.index[name]; dup {
			return nil, fmt.Errorf("vocabulary: duplicate symptom %q at position %d", name, i)
		}
		v.index[name] = len(v.names)
		v.names = append(v.names, name)
	}
	return v, nil
}

// LoadVocabulary reads a persisted vocabulary. A .json file holds an array of
// names; any other file holds one name per line, where the line number is the
// feature index.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("vocabulary: %w", err)
		}
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return nil, fmt.Errorf("vocabulary: decode %s: %w", path, err)
		}
		return NewVocabulary(names)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vocabulary: read error: %w", err)
	}
	return NewVocabulary(names)
}

// Contains reports whether name is a known symptom. Matching is case-sensitive.
func (v *Vocabulary) Contains(name string) bool {
	_, ok := v.index[name]
	return ok
}

// Index returns the feature position of name.
func (v *Vocabulary) Index(name string) (int, bool) {
	i, ok := v.index[name]
	return i, ok
}

// Names returns a copy of the symptom names in training order.
func (v *Vocabulary) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Len returns the size of the feature space.
func (v *Vocabulary) Len() int {
	return len(v.names)
}

// Filter returns the union of groups restricted to the vocabulary, without
// duplicates, in vocabulary order. Unknown names are dropped.
func (v *Vocabulary) Filter(groups ...[]string) []string {
	present := make([]bool, len(v.names))
	n := 0
	for _, group := range groups {
		for _, name := range group {
			if i, ok := v.index[name]; ok && !present[i] {
				present[i] = true
				n++
			}
		}
	}

	out := make([]string, 0, n)
	for i, ok := range present {
		if ok {
			out = append(out, v.names[i])
		}
	}
	return out
}

// FeatureVector encodes the present symptoms positionally. Unknown names are
// ignored.
func (v *Vocabulary) FeatureVector(present []string) FeatureVector {
	fv := make(FeatureVector, len(v.names))
	for _, name := range present {
		if i, ok := v.index[name]; ok {
			fv[i] = 1
		}
	}
	return fv
}
