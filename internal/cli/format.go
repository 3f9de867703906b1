package cli

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fpang/mentor-metrics-cli/internal/api"
	"github.com/fpang/mentor-metrics-cli/internal/pipeline"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatBytes formats a size with a binary unit (KB, MB, GB).
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// ProgressBar renders pct (0-100) as a fixed-width bar.
func ProgressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat("-", width-filled), pct)
}

var stateMarks = map[pipeline.State]string{
	pipeline.StateDone:       "[x]",
	pipeline.StateInProgress: "[>]",
	pipeline.StatePending:    "[ ]",
}

// RenderTimeline writes the stage timeline, one stage per line, followed by
// a progress summary.
func RenderTimeline(w io.Writer, status pipeline.Status, states []pipeline.StageState) {
	fmt.Fprintf(w, "Status: %s\n", status.Label())
	for _, s := range states {
		line := fmt.Sprintf("  %s %s", stateMarks[s.State], s.Stage.Label)
		if s.State == pipeline.StateInProgress {
			line += " - " + s.Stage.Description
		}
		fmt.Fprintln(w, line)
	}
	done, total := pipeline.Progress(states)
	fmt.Fprintf(w, "  %d/%d stages complete\n", done, total)
}

// scoreOrder lists the headline scores first; any others follow by name.
var scoreOrder = []string{"mentor_score", "engagement", "communication_clarity", "technical_correctness"}

// FormatScore renders a score with one decimal, or "-" when absent.
func FormatScore(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

// humanize turns a snake_case key into a title.
func humanize(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// RenderResults writes the summary view of a completed session.
func RenderResults(w io.Writer, sessionID string, r *api.Results) {
	fmt.Fprintf(w, "Session %s\n", sessionID)
	fmt.Fprintln(w, strings.Repeat("=", 44))

	if len(r.Scores) > 0 {
		fmt.Fprintln(w, "Scores:")
		seen := make(map[string]bool, len(r.Scores))
		var keys []string
		for _, k := range scoreOrder {
			if _, ok := r.Scores[k]; ok {
				keys = append(keys, k)
				seen[k] = true
			}
		}
		var rest []string
		for k := range r.Scores {
			if !seen[k] {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		keys = append(keys, rest...)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, k := range keys {
			v := r.Scores[k]
			fmt.Fprintf(tw, "  %s\t%s\n", humanize(k), FormatScore(&v))
		}
		tw.Flush()
	}

	if r.Audio != nil {
		fmt.Fprintln(w, "Delivery:")
		fmt.Fprintf(w, "  Pace: %.0f words/min, clarity %.2f, silence %.0f%%\n",
			r.Audio.WPM, r.Audio.ClarityScore, r.Audio.SilenceRatio*100)
	}

	if r.Transcript != nil && r.Transcript.Text != "" {
		dur := time.Duration(r.Transcript.Duration() * float64(time.Second))
		fmt.Fprintf(w, "Transcript (%s, %d segments):\n", FormatDurationShort(dur), len(r.Transcript.Segments))
		fmt.Fprintf(w, "  %s\n", excerpt(r.Transcript.Text, 240))
	}

	if r.Report != nil {
		if r.Report.Summary != "" {
			fmt.Fprintln(w, "Summary:")
			fmt.Fprintf(w, "  %s\n", r.Report.Summary)
		}
		writeList(w, "Strengths", r.Report.Strengths)
		writeList(w, "Improvements", r.Report.Improvements)
		writeList(w, "Tips", r.Report.ActionableTips)
	}
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RenderSessions writes the session list as a table.
func RenderSessions(w io.Writer, sessions []api.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions yet. Upload a video with `mentor-metrics upload`.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tSTATUS\tCREATED\tSCORE")
	for _, s := range sessions {
		status := s.Status
		if parsed, err := pipeline.ParseStatus(s.Status); err == nil {
			status = parsed.Label()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Filename, status, formatCreated(s.CreatedAt), FormatScore(s.MentorScore))
	}
	tw.Flush()
}

// formatCreated shortens an RFC 3339 timestamp to local "2006-01-02 15:04".
func formatCreated(ts string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Local().Format("2006-01-02 15:04")
		}
	}
	return ts
}
