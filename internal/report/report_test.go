package report

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/Brownie44l1/plant-api/internal/diseases"
	"github.com/Brownie44l1/plant-api/internal/model"
)

func TestFormatLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"leaf_spot", "Leaf Spot"},
		{"healthy", "Healthy"},
		{"powdery_mildew", "Powdery Mildew"},
		{"early_Blight_stage2", "Early Blight Stage2"},
		{"a__b", "A  B"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FormatLabel(tt.in); got != tt.want {
			t.Errorf("FormatLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfidencePercent(t *testing.T) {
	tests := []struct {
		p    float64
		want int
	}{
		{0.82, 82},
		{0.826, 83},
		{0.004, 0},
		{1, 100},
		{1.2, 100},
		{-0.1, 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := ConfidencePercent(tt.p); got != tt.want {
			t.Errorf("ConfidencePercent(%v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestRender_Empty(t *testing.T) {
	_, err := Render(nil, diseases.Default())
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Render(nil) error = %v, want ErrInvalidInput", err)
	}
}

func TestRender_PowderyMildew(t *testing.T) {
	kb := diseases.Default()
	r, err := Render([]model.Prediction{
		{Label: "powdery_mildew", Probability: 0.82},
		{Label: "healthy", Probability: 0.18},
	}, kb)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	top := r.Top()
	if top.Label != "Powdery Mildew" || top.Confidence != 82 {
		t.Errorf("top = %+v, want Powdery Mildew at 82%%", top)
	}
	want := kb.Lookup("powdery_mildew")
	if r.Info.Description != want.Description || r.Info.Treatment != want.Treatment {
		t.Errorf("info = %+v, want powdery_mildew entry", r.Info)
	}
	if r.Info.Title != "About Powdery Mildew" {
		t.Errorf("title = %q", r.Info.Title)
	}
	if r.Info.Fallback {
		t.Error("known label flagged as fallback")
	}
}

func TestRender_SortsAndKeepsTieOrder(t *testing.T) {
	r, err := Render([]model.Prediction{
		{Label: "healthy", Probability: 0.2},
		{Label: "leaf_spot", Probability: 0.4},
		{Label: "rust", Probability: 0.2},
		{Label: "powdery_mildew", Probability: 0.2},
	}, diseases.Default())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"leaf_spot", "healthy", "rust", "powdery_mildew"}
	for i, e := range r.Entries {
		if e.Key != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Key, want[i])
		}
	}
}

func TestRender_UnknownTopLabelFallsBack(t *testing.T) {
	kb := diseases.Default()
	r, err := Render([]model.Prediction{
		{Label: "black_rot", Probability: 0.9},
		{Label: "healthy", Probability: 0.1},
	}, kb)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Info.Fallback {
		t.Error("expected Fallback for unknown label")
	}
	if r.Info.Description != kb.Lookup("healthy").Description {
		t.Errorf("description = %q, want healthy entry", r.Info.Description)
	}
	if r.Info.Title != "About Black Rot" {
		t.Errorf("title = %q, want About Black Rot", r.Info.Title)
	}
}

func TestRender_DoesNotMutateInput(t *testing.T) {
	in := []model.Prediction{{Label: "healthy", Probability: 0.1}, {Label: "leaf_spot", Probability: 0.9}}
	if _, err := Render(in, diseases.Default()); err != nil {
		t.Fatal(err)
	}
	if in[0].Label != "healthy" {
		t.Error("Render reordered the caller's slice")
	}
}

func TestRender_RandomDistributions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	kb := diseases.Default()

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(12)
		raw := make([]float64, n)
		var sum float64
		for i := range raw {
			raw[i] = rng.Float64()
			sum += raw[i]
		}
		preds := make([]model.Prediction, n)
		for i := range preds {
			preds[i] = model.Prediction{Label: "class_" + string(rune('a'+i)), Probability: raw[i] / sum}
		}

		r, err := Render(preds, kb)
		if err != nil {
			t.Fatal(err)
		}
		total := 0
		for i, e := range r.Entries {
			if i > 0 && e.Probability > r.Entries[i-1].Probability {
				t.Fatalf("trial %d: entries not descending at %d", trial, i)
			}
			total += e.Confidence
		}
		// Each entry rounds by at most half a percent.
		if diff := total - 100; diff*2 > n || -diff*2 > n {
			t.Fatalf("trial %d: confidence sum %d outside rounding tolerance for %d entries", trial, total, n)
		}
	}
}

func TestHTML(t *testing.T) {
	r, err := Render([]model.Prediction{
		{Label: "powdery_mildew", Probability: 0.82},
		{Label: "healthy", Probability: 0.18},
	}, diseases.Default())
	if err != nil {
		t.Fatal(err)
	}
	f, err := HTML(r)
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if strings.Count(f.Predictions, `class="prediction-item"`) != 2 {
		t.Errorf("expected two prediction items:\n%s", f.Predictions)
	}
	if !strings.Contains(f.Predictions, "82% confidence") || !strings.Contains(f.Predictions, "width: 82%") {
		t.Errorf("missing confidence markup:\n%s", f.Predictions)
	}
	if strings.Index(f.Predictions, "Powdery Mildew") > strings.Index(f.Predictions, "Healthy") {
		t.Error("items not in ranked order")
	}
	if !strings.Contains(f.Info, "<h3>About Powdery Mildew</h3>") {
		t.Errorf("info panel title missing:\n%s", f.Info)
	}
	if !strings.Contains(f.Info, "Recommended Treatment:</strong> Apply sulfur") {
		t.Errorf("treatment missing:\n%s", f.Info)
	}
}

func TestHTML_EscapesLabels(t *testing.T) {
	r, err := Render([]model.Prediction{{Label: "<script>", Probability: 1}}, diseases.Default())
	if err != nil {
		t.Fatal(err)
	}
	f, err := HTML(r)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(f.Predictions, "<script>") || strings.Contains(f.Info, "<script>") {
		t.Error("label not escaped")
	}
}
