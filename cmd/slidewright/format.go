package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"slidewright/internal/api"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// relativeTime renders an API timestamp as "3 minutes ago".
func relativeTime(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatProgress(p int) string {
	return fmt.Sprintf("%d%%", p)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func documentStatus(doc api.Document) string {
	status := doc.StatusLabel
	if status == "" {
		status = doc.ProcessingStatus
	}
	if doc.ProcessingStatus == "error" && doc.ResumeStatus != "" {
		status += " (resume from " + doc.ResumeStatus + ")"
	}
	return status
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
