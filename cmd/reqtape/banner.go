package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/funnyzak/reqtape/internal/config"
)

func printRecordBanner(w io.Writer, cfg *config.Config, reportPath string) {
	title := fmt.Sprintf("ReqTape v%s", version)
	subtitle := "Record & Replay HTTP Proxy"
	printBox(w, title, subtitle, recordSummary(cfg, reportPath))
}

// printBox draws lines inside a box sized to the widest line
func printBox(w io.Writer, title, subtitle string, lines []string) {
	maxLength := runewidth.StringWidth(title)
	for _, line := range append([]string{subtitle}, lines...) {
		if width := runewidth.StringWidth(line); width > maxLength {
			maxLength = width
		}
	}
	boxWidth := maxLength + 4
	if boxWidth < 50 {
		boxWidth = 50
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
	printBoxContent(w, title, boxWidth, true)
	printBoxContent(w, subtitle, boxWidth, true)
	fmt.Fprintf(w, "├%s┤\n", strings.Repeat("─", boxWidth-2))
	for _, line := range lines {
		printBoxContent(w, line, boxWidth, false)
	}
	fmt.Fprintf(w, "└%s┘\n", strings.Repeat("─", boxWidth-2))
	fmt.Fprintln(w)
}

// printBoxContent prints the content line of the box
func printBoxContent(w io.Writer, content string, boxWidth int, center bool) {
	padding := boxWidth - 2 - runewidth.StringWidth(content)
	if padding < 0 {
		padding = 0
	}

	var leftPad, rightPad string
	if center {
		leftPad = strings.Repeat(" ", padding/2)
		rightPad = strings.Repeat(" ", padding-padding/2)
	} else {
		leftPad = "  "
		rightPad = strings.Repeat(" ", max(padding-2, 0))
	}
	fmt.Fprintf(w, "│%s%s%s│\n", leftPad, content, rightPad)
}
