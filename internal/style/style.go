// Package style provides terminal styling for the command line tools.
package style

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorLeaf = lipgloss.AdaptiveColor{
		Light: "#2e7d32",
		Dark:  "#81c784",
	}
	colorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	colorFail = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	colorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✖"
)

var (
	Success = lipgloss.NewStyle().Foreground(colorLeaf).Bold(true)
	Warning = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	Error   = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	Dim     = lipgloss.NewStyle().Foreground(colorMuted)
	Bold    = lipgloss.NewStyle().Bold(true)
	// Bar fills the confidence bars.
	Bar = lipgloss.NewStyle().Foreground(colorLeaf)
	// Panel frames the disease info block.
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorLeaf).
		Padding(0, 1)
)

// SetColorMode overrides style rendering based on --color flag or NO_COLOR env.
func SetColorMode(mode string) {
	switch mode {
	case "never":
		_ = os.Setenv("NO_COLOR", "1")
		Success = lipgloss.NewStyle()
		Warning = lipgloss.NewStyle()
		Error = lipgloss.NewStyle()
		Dim = lipgloss.NewStyle()
		Bold = lipgloss.NewStyle()
		Bar = lipgloss.NewStyle()
		Panel = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	case "always":
		_ = os.Unsetenv("NO_COLOR")
		_ = os.Setenv("CLICOLOR_FORCE", "1")
		Success = lipgloss.NewStyle().Foreground(colorLeaf).Bold(true)
		Warning = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
		Error = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
		Dim = lipgloss.NewStyle().Foreground(colorMuted)
		Bold = lipgloss.NewStyle().Bold(true)
		Bar = lipgloss.NewStyle().Foreground(colorLeaf)
		Panel = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorLeaf).Padding(0, 1)
	}
}

// ConfidenceBar draws a bar of width cells filled to percent.
func ConfidenceBar(percent, width int) string {
	if width <= 0 {
		return ""
	}
	percent = max(0, min(100, percent))
	filled := (percent*width + 50) / 100
	return Bar.Render(strings.Repeat("█", filled)) + Dim.Render(strings.Repeat("░", width-filled))
}
