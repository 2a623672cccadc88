package main

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plant-api/internal/log"
	"github.com/Brownie44l1/plant-api/internal/model"
	"github.com/Brownie44l1/plant-api/internal/report"
	"github.com/Brownie44l1/plant-api/internal/style"
)

const barWidth = 20

func newPredictCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify a leaf photo and print the ranked diagnosis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, stdout, stderr, args[0])
		},
	}
	addModelFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

func runPredict(cmd *cobra.Command, stdout, stderr io.Writer, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log.Init(stderr, cfg.LogLevel)

	img, err := decodeImage(path)
	if err != nil {
		return err
	}
	kb, err := loadKnowledge(cfg)
	if err != nil {
		return err
	}

	loader := model.ONNXLoader{
		ModelPath:    cfg.ModelPath(),
		MetadataPath: cfg.MetadataPath(),
		LibraryPath:  cfg.ORTLibrary,
	}
	sp := style.StartSpinner(stderr, "Loading model...")
	clf, err := loader.Load(cmd.Context())
	sp.Stop()
	if err != nil {
		return hintWrap(err, cfg)
	}
	defer clf.Close()

	preds, err := clf.Predict(cmd.Context(), img)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	rep, err := report.Render(preds, kb)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	printReport(stdout, rep)
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// printReport writes the ranked predictions and the info panel for the
// top one.
func printReport(w io.Writer, rep report.Report) {
	width := 0
	for _, e := range rep.Entries {
		width = max(width, len(e.Label))
	}
	for i, e := range rep.Entries {
		label := fmt.Sprintf("%-*s", width, e.Label)
		if i == 0 {
			label = style.Bold.Render(label)
		}
		fmt.Fprintf(w, "%s  %s %3d%%\n", label, style.ConfidenceBar(e.Confidence, barWidth), e.Confidence)
	}
	fmt.Fprintln(w)

	var b strings.Builder
	b.WriteString(style.Success.Render(rep.Info.Title))
	b.WriteString("\n" + style.Bold.Render("Description:") + " " + rep.Info.Description)
	b.WriteString("\n" + style.Bold.Render("Recommended Treatment:") + " " + rep.Info.Treatment)
	fmt.Fprintln(w, style.Panel.Render(b.String()))

	if rep.Info.Fallback {
		fmt.Fprintf(w, "%s no disease entry for %q; showing the default entry\n",
			style.Warning.Render(style.IconWarn), rep.Info.Key)
	}
}
