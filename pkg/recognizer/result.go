package recognizer

// Resolution kinds attached to recognized entities.
const (
	DateTimeResolution     = "DateTimeResolution"
	TemporalSpanResolution = "TemporalSpanResolution"
)

// Resolution is one structured interpretation of an entity's text. A
// DateTimeResolution carries a single Value; a TemporalSpanResolution
// carries Begin and End.
type Resolution struct {
	ResolutionKind string `json:"resolutionKind"`
	Timex          string `json:"timex,omitempty"`
	Value          string `json:"value,omitempty"`
	Begin          string `json:"begin,omitempty"`
	End            string `json:"end,omitempty"`
}

// Entity is one span the classifier labelled in the utterance.
type Entity struct {
	Category    string       `json:"category"`
	Text        string       `json:"text"`
	Confidence  float64      `json:"confidence"`
	Resolutions []Resolution `json:"resolutions,omitempty"`
}

// Result is the canonical classification outcome for one utterance.
type Result struct {
	Text      string             `json:"text"`
	TopIntent string             `json:"topIntent"`
	Intents   map[string]float64 `json:"intents"`
	Entities  []Entity           `json:"entities,omitempty"`
}

// Top returns the highest-scoring intent and its score. It prefers the
// service-reported top intent when that intent is present in the score
// map; otherwise it scans for the maximum.
func (r *Result) Top() (string, float64) {
	if score, ok := r.Intents[r.TopIntent]; ok && r.TopIntent != "" {
		return r.TopIntent, score
	}
	best, max := "None", 0.0
	for name, score := range r.Intents {
		if score > max {
			best, max = name, score
		}
	}
	return best, max
}
