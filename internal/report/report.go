// Package report turns a frame's raw predictions into the ranked list and
// info panel shown to the user.
package report

import (
	"errors"
	"math"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Brownie44l1/plant-api/internal/diseases"
	"github.com/Brownie44l1/plant-api/internal/model"
)

// ErrInvalidInput is returned for an empty prediction list.
var ErrInvalidInput = errors.New("invalid input: no predictions")

// Entry is one ranked class.
type Entry struct {
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Confidence  int     `json:"confidence"`
}

// Info is the panel describing the top prediction.
type Info struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Treatment   string `json:"treatment"`
	// Fallback is set when the top label had no entry of its own and the
	// knowledge base default was shown instead.
	Fallback bool `json:"fallback"`
}

// Report is the rendered result for one frame.
type Report struct {
	Entries []Entry `json:"entries"`
	Info    Info    `json:"info"`
}

// Top returns the highest-ranked entry.
func (r Report) Top() Entry {
	return r.Entries[0]
}

// Render ranks predictions by descending probability, keeping input order
// for ties, and attaches the knowledge base entry for the winner.
func Render(predictions []model.Prediction, kb *diseases.KnowledgeBase) (Report, error) {
	if len(predictions) == 0 {
		return Report{}, ErrInvalidInput
	}

	sorted := slices.Clone(predictions)
	slices.SortStableFunc(sorted, func(a, b model.Prediction) int {
		switch {
		case a.Probability > b.Probability:
			return -1
		case a.Probability < b.Probability:
			return 1
		default:
			return 0
		}
	})

	entries := make([]Entry, len(sorted))
	for i, p := range sorted {
		entries[i] = Entry{
			Key:         p.Label,
			Label:       FormatLabel(p.Label),
			Probability: p.Probability,
			Confidence:  ConfidencePercent(p.Probability),
		}
	}

	top := sorted[0].Label
	d := kb.Lookup(top)
	return Report{
		Entries: entries,
		Info: Info{
			Key:         top,
			Title:       "About " + FormatLabel(top),
			Description: d.Description,
			Treatment:   d.Treatment,
			Fallback:    !kb.Has(top),
		},
	}, nil
}

// FormatLabel turns "leaf_spot" into "Leaf Spot". Only the first letter
// of each token is touched.
func FormatLabel(label string) string {
	tokens := strings.Split(label, "_")
	for i, tok := range tokens {
		r, size := utf8.DecodeRuneInString(tok)
		if size == 0 {
			continue
		}
		tokens[i] = string(unicode.ToUpper(r)) + tok[size:]
	}
	return strings.Join(tokens, " ")
}

// ConfidencePercent rounds p*100 to the nearest integer, clamped to 0-100.
// NaN maps to 0.
func ConfidencePercent(p float64) int {
	if math.IsNaN(p) {
		return 0
	}
	v := math.Round(p * 100)
	return int(math.Max(0, math.Min(100, v)))
}
