package ensemble

import (
	"encoding/json"
	"fmt"
	"os"
)

// LabelEncoder decodes codes by position in a fixed class list, the layout a
// fitted label encoder exports.
type LabelEncoder struct {
	classes []string
}

// NewLabelEncoder creates an encoder over classes in code order.
func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("label encoder: no classes")
	}
	seen := make(map[string]bool, len(classes))
	for i, c := range classes {
		if c == "" {
			return nil, fmt.Errorf("label encoder: empty class at code %d", i)
		}
		if seen[c] {
			return nil, fmt.Errorf("label encoder: duplicate class %q", c)
		}
		seen[c] = true
	}
	cs := make([]string, len(classes))
	copy(cs, classes)
	return &LabelEncoder{classes: cs}, nil
}

// LoadLabelEncoder reads a JSON array of class names.
func LoadLabelEncoder(path string) (*LabelEncoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("label encoder: %w", err)
	}
	var classes []string
	if err := json.Unmarshal(data, &classes); err != nil {
		return nil, fmt.Errorf("label encoder: decode %s: %w", path, err)
	}
	return NewLabelEncoder(classes)
}

// Decode returns the class name for code.
func (l *LabelEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(l.classes) {
		return "", fmt.Errorf("label encoder: code %d out of range [0,%d)", code, len(l.classes))
	}
	return l.classes[code], nil
}

// Classes returns the class names in code order.
func (l *LabelEncoder) Classes() []string {
	out := make([]string, len(l.classes))
	copy(out, l.classes)
	return out
}
