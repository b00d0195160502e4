// Package eval provides the cheap lexical metrics used to compare generated
// notes against reference discharge notes. Model-based scoring lives with
// the evaluation collaborator, not here.
package eval

import (
	"regexp"
	"strings"
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	wordPattern   = regexp.MustCompile(`[A-Za-z]+`)
)

// clinicalVocabulary is the fixed ICU term list behind TermDensity.
var clinicalVocabulary = map[string]bool{
	"sepsis": true, "septic": true, "pneumonia": true, "respiratory": true,
	"failure": true, "ventilation": true, "ventilated": true, "intubated": true,
	"vasopressor": true, "norepinephrine": true, "dopamine": true,
	"epinephrine": true, "shock": true, "hemodynamic": true,
	"hemodynamically": true, "hypotension": true, "hypertension": true,
	"tachycardia": true, "bradycardia": true, "renal": true, "kidney": true,
	"creatinine": true, "dialysis": true, "crrt": true, "cardiac": true,
	"myocardial": true, "infarction": true, "ischemia": true, "stroke": true,
	"antibiotic": true, "anticoagulation": true, "insulin": true,
	"sedation": true, "propofol": true, "midazolam": true, "fentanyl": true,
	"icu": true, "intensive": true, "unit": true, "monitoring": true,
	"lactate": true, "acidosis": true, "alkalosis": true, "hypoxia": true,
	"hypercapnia": true,
}

// Metrics bundles both lexical scores for one text.
type Metrics struct {
	AvgSentenceLength float64 `json:"avg_sentence_length"`
	TermDensity       float64 `json:"term_density"`
}

// Score computes both metrics.
func Score(text string) Metrics {
	return Metrics{
		AvgSentenceLength: AvgSentenceLength(text),
		TermDensity:       TermDensity(text),
	}
}

// AvgSentenceLength splits on sentence punctuation and returns the mean
// whitespace-token count across non-empty sentences. No sentences scores 0.
func AvgSentenceLength(text string) float64 {
	parts := sentenceSplit.Split(text, -1)
	total, n := 0, 0
	for _, p := range parts {
		words := strings.Fields(p)
		if len(words) == 0 {
			continue
		}
		total += len(words)
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// TermDensity returns the fraction of alphabetic tokens, lowercased, that
// appear in the clinical vocabulary. No alphabetic tokens scores 0.
func TermDensity(text string) float64 {
	words := wordPattern.FindAllString(text, -1)
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if clinicalVocabulary[strings.ToLower(w)] {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
