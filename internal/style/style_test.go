package style

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetColorMode_Never(t *testing.T) {
	SetColorMode("never")
	got := Success.Render("x")
	if strings.Contains(got, "\x1b") {
		t.Errorf("SetColorMode(never): Success.Render(\"x\") = %q, want no ANSI escapes", got)
	}
	if got != "x" {
		t.Errorf("SetColorMode(never): Success.Render(\"x\") = %q, want \"x\"", got)
	}
}

func TestSetColorMode_Always(t *testing.T) {
	SetColorMode("always")
	if got := Success.Render("ok"); got == "" {
		t.Error("SetColorMode(always): Success.Render returned empty string")
	}
}

func TestConfidenceBar(t *testing.T) {
	SetColorMode("never")
	tests := []struct {
		percent, width int
		want           string
	}{
		{0, 4, "░░░░"},
		{100, 4, "████"},
		{50, 4, "██░░"},
		{150, 2, "██"},
		{-5, 2, "░░"},
		{50, 0, ""},
	}
	for _, tt := range tests {
		if got := ConfidenceBar(tt.percent, tt.width); got != tt.want {
			t.Errorf("ConfidenceBar(%d, %d) = %q, want %q", tt.percent, tt.width, got, tt.want)
		}
	}
}

func TestSpinner_NonTTY(t *testing.T) {
	var buf bytes.Buffer
	s := StartSpinner(&buf, "loading model")
	s.Stop()
	if buf.String() != "loading model\n" {
		t.Errorf("non-TTY spinner wrote %q", buf.String())
	}
	if IsTerminal(&buf) {
		t.Error("buffer reported as terminal")
	}
}
