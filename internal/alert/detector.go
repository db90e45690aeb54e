// Package alert flags answers that look like refusals despite strong
// retrieval and delivers them to an operator off the request path.
package alert

import "strings"

// DefaultThreshold is the confidence above which a refusal is suspicious.
const DefaultThreshold = 0.60

// DefaultPhrases are the refusal markers looked for in answers.
var DefaultPhrases = []string{
	"no tengo información",
	"no encuentro",
	"lo siento",
	"no sé",
	"disculpa",
}

// Detector decides whether an answer should raise an alert.
type Detector struct {
	Threshold float64
	Phrases   []string
}

// NewDetector lowercases phrases once. Empty phrases are ignored and a nil
// list selects DefaultPhrases.
func NewDetector(threshold float64, phrases []string) *Detector {
	if phrases == nil {
		phrases = DefaultPhrases
	}
	d := &Detector{Threshold: threshold}
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			d.Phrases = append(d.Phrases, p)
		}
	}
	return d
}

// Suspicious reports whether confidence is strictly above the threshold and
// the answer contains a refusal phrase, ignoring case.
func (d *Detector) Suspicious(confidence float64, answer string) bool {
	if confidence <= d.Threshold {
		return false
	}
	lower := strings.ToLower(answer)
	for _, p := range d.Phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
