package refine

// Kind is the outcome of one refinement round.
type Kind int

const (
	// NoValidSymptoms means none of the supplied symptoms are known.
	NoValidSymptoms Kind = iota + 1
	// NoMatch means no known disease has every supplied symptom.
	NoMatch
	// SingleDiagnosis commits to one disease.
	SingleDiagnosis
	// RefinementNeeded asks the caller for one more symptom.
	RefinementNeeded
)

func (k Kind) String() string {
	switch k {
	case NoValidSymptoms:
		return "no_valid_symptoms"
	case NoMatch:
		return "no_match"
	case SingleDiagnosis:
		return "single_diagnosis"
	case RefinementNeeded:
		return "refinement_needed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the round ends the session.
func (k Kind) Terminal() bool {
	return k == NoValidSymptoms || k == NoMatch || k == SingleDiagnosis
}

// Source of a SingleDiagnosis.
const (
	SourceKnowledgeBase = "knowledge_base"
	SourceEnsemble      = "ensemble"
)

// Result describes one refinement round.
type Result struct {
	Kind Kind

	// Disease is set for SingleDiagnosis.
	Disease string
	// FallbackDisease is the ensemble vote reported with NoMatch.
	FallbackDisease string
	// Source is SourceKnowledgeBase or SourceEnsemble for SingleDiagnosis.
	Source string

	// Candidates, AskSymptom and Distinguishing are set for RefinementNeeded.
	Candidates     []string
	AskSymptom     string
	Distinguishing []string

	// Symptoms is the filtered symptom set the round ran on, vocabulary order.
	Symptoms []string

	// SuggestFallback is true when the caller should offer general
	// assistance instead of a diagnosis.
	SuggestFallback bool
}

// Diagnosis returns the disease a terminal result carries, if any.
func (r Result) Diagnosis() string {
	switch r.Kind {
	case SingleDiagnosis:
		return r.Disease
	case NoMatch:
		return r.FallbackDisease
	default:
		return ""
	}
}
