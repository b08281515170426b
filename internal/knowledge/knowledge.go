// Package knowledge maps diseases to their associated symptoms. The mapping is
// built offline from training data and is read-only at request time.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Base is an immutable disease -> symptom set mapping.
type Base struct {
	diseases []string
	symptoms map[string]map[string]struct{}
}

// New copies m into a Base. Duplicate symptoms per disease collapse.
func New(m map[string][]string) *Base {
	b := &Base{
		diseases: make([]string, 0, len(m)),
		symptoms: make(map[string]map[string]struct{}, len(m)),
	}
	for disease, syms := range m {
		set := make(map[string]struct{}, len(syms))
		for _, s := range syms {
			set[s] = struct{}{}
		}
		b.symptoms[disease] = set
		b.diseases = append(b.diseases, disease)
	}
	sort.Strings(b.diseases)
	return b
}

// Load reads a JSON object of the form {"Disease": ["symptom", ...]}.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge base: %w", err)
	}
	var m map[string][]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("knowledge base: decode %s: %w", path, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("knowledge base: %s has no diseases", path)
	}
	return New(m), nil
}

// Len returns the number of diseases.
func (b *Base) Len() int {
	return len(b.diseases)
}

// Has reports whether the disease has an entry.
func (b *Base) Has(disease string) bool {
	_, ok := b.symptoms[disease]
	return ok
}

// Diseases returns all disease names, sorted.
func (b *Base) Diseases() []string {
	out := make([]string, len(b.diseases))
	copy(out, b.diseases)
	return out
}

// SymptomsOf returns the sorted symptoms associated with disease. Unknown
// diseases have no symptoms.
func (b *Base) SymptomsOf(disease string) []string {
	set := b.symptoms[disease]
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// HasSymptom reports whether symptom is associated with disease.
func (b *Base) HasSymptom(disease, symptom string) bool {
	_, ok := b.symptoms[disease][symptom]
	return ok
}

// DiseasesMatchingAll returns every disease whose symptom set contains all of
// the given symptoms, sorted. The disease may have further symptoms that were
// not mentioned. An empty query matches nothing.
func (b *Base) DiseasesMatchingAll(symptoms []string) []string {
	if len(symptoms) == 0 {
		return nil
	}

	var out []string
	for _, disease := range b.diseases {
		set := b.symptoms[disease]
		all := true
		for _, s := range symptoms {
			if _, ok := set[s]; !ok {
				all = false
				break
			}
		}
		if all {
			out = append(out, disease)
		}
	}
	return out
}

// Restrict returns a copy keeping only symptoms accepted by vocab. Diseases
// left without symptoms are kept so that lookups still succeed.
func (b *Base) Restrict(vocab interface{ Contains(string) bool }) *Base {
	m := make(map[string][]string, len(b.diseases))
	for _, disease := range b.diseases {
		kept := []string{}
		for s := range b.symptoms[disease] {
			if vocab.Contains(s) {
				kept = append(kept, s)
			}
		}
		m[disease] = kept
	}
	return New(m)
}
