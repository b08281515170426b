// Package enrich fetches human readable disease details and chat replies from
// a text generation backend, falling back to a fixed template.
package enrich

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Details sources.
const (
	SourceGenerated = "generated"
	SourceFallback  = "fallback"
)

// Details describes a disease for display.
type Details struct {
	Description string   `json:"description"`
	Causes      []string `json:"causes"`
	Precautions []string `json:"precautions"`
	Medicines   []string `json:"medicines"`
	Source      string   `json:"source"`
}

// Fallback returns the generic template for disease.
func Fallback(disease string) Details {
	return Details{
		Description: fmt.Sprintf("No detailed description available for %s.", disease),
		Causes:      []string{"- Unknown"},
		Precautions: []string{"- Consult a doctor."},
		Medicines:   []string{"- Consult a doctor."},
		Source:      SourceFallback,
	}
}

// ParseDetails extracts Details from generated text. Markdown fences and
// surrounding prose are tolerated; list fields may be arrays or newline
// separated strings. Missing fields are filled from the template. ok is false
// when nothing usable was found, in which case the full template is returned.
func ParseDetails(disease, text string) (d Details, ok bool) {
	fb := Fallback(disease)

	obj := extractObject(stripFences(text))
	if obj == "" {
		return fb, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return fb, false
	}
	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(strings.TrimSpace(k))] = v
	}

	d = Details{
		Description: parseText(fields["description"]),
		Causes:      parseList(fields["causes"]),
		Precautions: parseList(fields["precautions"]),
		Medicines:   parseList(fields["medicines"]),
		Source:      SourceGenerated,
	}
	if d.Description == "" && len(d.Causes) == 0 && len(d.Precautions) == 0 && len(d.Medicines) == 0 {
		return fb, false
	}

	if d.Description == "" {
		d.Description = fb.Description
	}
	if len(d.Causes) == 0 {
		d.Causes = fb.Causes
	}
	if len(d.Precautions) == 0 {
		d.Precautions = fb.Precautions
	}
	if len(d.Medicines) == 0 {
		d.Medicines = fb.Medicines
	}
	return d, true
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// Drop the info string, e.g. "json".
		text = text[nl+1:]
	}
	if end := strings.LastIndex(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// extractObject returns the text between the first '{' and the last '}'.
func extractObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func parseText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if items := parseList(raw); len(items) > 0 {
		return strings.Join(items, " ")
	}
	return ""
}

func parseList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err == nil {
		var out []string
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				s = fmt.Sprint(it)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
