package report

import (
	"bytes"
	"html/template"
	"io"
)

var fragments = template.Must(template.New("predictions").Parse(`
{{- define "predictions" -}}
{{- range .Entries -}}
<div class="prediction-item">
  <div>
    <strong>{{.Label}}</strong>
    <div>{{.Confidence}}% confidence</div>
  </div>
  <div class="confidence-bar">
    <div class="confidence-level" style="width: {{.Confidence}}%"></div>
  </div>
</div>
{{end -}}
{{- end -}}

{{- define "info" -}}
<h3>{{.Info.Title}}</h3>
<p><strong>Description:</strong> {{.Info.Description}}</p>
<p><strong>Recommended Treatment:</strong> {{.Info.Treatment}}</p>
{{- end -}}
`))

// Fragments holds the markup for the label container and the info panel.
type Fragments struct {
	Predictions string `json:"predictions"`
	Info        string `json:"info"`
}

// WritePredictions writes the ranked prediction items.
func WritePredictions(w io.Writer, r Report) error {
	return fragments.ExecuteTemplate(w, "predictions", r)
}

// WriteInfo writes the disease info panel.
func WriteInfo(w io.Writer, r Report) error {
	return fragments.ExecuteTemplate(w, "info", r)
}

// HTML renders both fragments.
func HTML(r Report) (Fragments, error) {
	var preds, info bytes.Buffer
	if err := WritePredictions(&preds, r); err != nil {
		return Fragments{}, err
	}
	if err := WriteInfo(&info, r); err != nil {
		return Fragments{}, err
	}
	return Fragments{Predictions: preds.String(), Info: info.String()}, nil
}
