package diagram

import (
	"fmt"
	"strings"
)

// statusTag returns a short ASCII indicator for a status string.
func statusTag(status string) string {
	switch status {
	case "completed":
		return "[OK]"
	case "failed":
		return "[FAIL]"
	case "running":
		return "[RUN]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a vertical chain of boxes.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	labels := edgeLabels(model)
	for i, node := range model.Nodes {
		box := makeBox(node)
		for _, line := range box.lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if i < len(model.Nodes)-1 {
			renderConnector(&b, labels[node.ID])
		}
	}
	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	content := []string{node.Label}
	if node.Detail != "" {
		content = append(content, node.Detail)
	}
	if node.Status != nil {
		status := statusTag(node.Status.Status)
		if node.Status.DurationMs > 0 {
			status = strings.TrimSpace(fmt.Sprintf("%s %dms", status, node.Status.DurationMs))
		}
		if status != "" {
			content = append(content, status)
		}
		if node.Status.Error != "" {
			content = append(content, truncate(node.Status.Error, 48))
		}
	}

	maxLen := 0
	for _, line := range content {
		maxLen = max(maxLen, len([]rune(line)))
	}
	width := maxLen + 4

	lines := make([]string, 0, len(content)+2)
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, line := range content {
		pad := maxLen - len([]rune(line))
		lines = append(lines, "│ "+line+strings.Repeat(" ", pad)+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// renderConnector draws a vertical connector to the next box.
func renderConnector(b *strings.Builder, label string) {
	if label != "" {
		fmt.Fprintf(b, "  │ %s\n", label)
	} else {
		b.WriteString("  │\n")
	}
	b.WriteString("  ▼\n")
}

// edgeLabels indexes edge labels by source node.
func edgeLabels(model *DiagramModel) map[string]string {
	out := make(map[string]string, len(model.Edges))
	for _, e := range model.Edges {
		if e.Label != "" {
			out[e.From] = e.Label
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
