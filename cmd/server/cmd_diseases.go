package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plant-api/internal/report"
	"github.com/Brownie44l1/plant-api/internal/style"
)

type diseaseJSON struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Treatment   string `json:"treatment"`
	Fallback    bool   `json:"fallback,omitempty"`
}

func newDiseasesCmd(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diseases",
		Short: "List the disease knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			kb, err := loadKnowledge(cfg)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				out := make([]diseaseJSON, 0, kb.Len())
				for _, k := range kb.Keys() {
					e := kb.Lookup(k)
					out = append(out, diseaseJSON{
						Key:         k,
						Label:       report.FormatLabel(k),
						Description: e.Description,
						Treatment:   e.Treatment,
						Fallback:    k == kb.Fallback(),
					})
				}
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			for _, k := range kb.Keys() {
				e := kb.Lookup(k)
				title := style.Bold.Render(report.FormatLabel(k))
				if k == kb.Fallback() {
					title += " " + style.Dim.Render("(default)")
				}
				fmt.Fprintf(stdout, "%s %s\n", title, style.Dim.Render(k))
				fmt.Fprintf(stdout, "  Description: %s\n", e.Description)
				fmt.Fprintf(stdout, "  Treatment:   %s\n", e.Treatment)
			}
			return nil
		},
	}
	cmd.Flags().String("diseases", "", "YAML disease table replacing the bundled one")
	cmd.Flags().Bool("json", false, "Print as JSON")
	return cmd
}
