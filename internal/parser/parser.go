// Package parser renders playbook files to their human-readable Markdown
// form and parses them back. The two directions round-trip exactly: a
// rendered file parses to the same sections that produced it.
//
// Format, per file:
//
//	# <file name>
//
//	## <title> {#<id>}
//	> tags: a, b | confidence: 0.70 | uses: 3 | turn: 12
//
//	<content>
//
//	---
//
//	## <next title> {#<next id>}
//	...
//
// Content is free-form. Body lines that would read as structure (a
// "## " heading, a bare "---" divider, or a leading backslash) are
// escaped with a backslash on render and unescaped on parse, so any
// content survives the round trip.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

var (
	headingRe = regexp.MustCompile(`^## (.*) \{#([A-Za-z0-9][A-Za-z0-9_.-]*)\}$`)
	metaRe    = regexp.MustCompile(`^> tags: (.*) \| confidence: ([0-9.]+) \| uses: ([0-9]+) \| turn: ([0-9]+)$`)
)

// Render produces the canonical Markdown representation of a file.
func Render(f *models.PlaybookFile) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", f.Name)
	for i, s := range f.Sections {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "## %s {#%s}\n", s.Title, s.ID)
		fmt.Fprintf(&b, "> tags: %s | confidence: %.2f | uses: %d | turn: %d\n",
			renderTags(s.Tags), s.Confidence, s.UsageCount, s.LastUpdated)
		b.WriteString("\n")
		b.WriteString(escapeBody(strings.TrimRight(s.Content, "\n")))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// escapeBody prefixes content lines that would read as file structure
// with a backslash. Lines already starting with one are escaped too,
// keeping the codec a bijection.
func escapeBody(content string) string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, `\`) || strings.HasPrefix(l, "## ") || l == "---" {
			lines[i] = `\` + l
		}
	}
	return strings.Join(lines, "\n")
}

func renderTags(tags []string) string {
	if len(tags) == 0 {
		return "-"
	}
	return strings.Join(tags, ", ")
}

// Parse reconstructs a playbook file from its rendered form. Any
// structural defect (heading without annotation, bad numbers, duplicate
// ids, empty content) is an error; the caller treats it as store
// corruption.
func Parse(name string, data []byte) (*models.PlaybookFile, error) {
	f := &models.PlaybookFile{Name: name}
	lines := strings.Split(string(data), "\n")
	seen := make(map[string]struct{})

	i := 0
	// Optional file header.
	for i < len(lines) && !strings.HasPrefix(lines[i], "## ") {
		if t := strings.TrimSpace(lines[i]); t != "" && t != "---" && !strings.HasPrefix(t, "# ") {
			return nil, fmt.Errorf("parser: %s:%d: unexpected text outside sections", name, i+1)
		}
		i++
	}

	for i < len(lines) {
		m := headingRe.FindStringSubmatch(lines[i])
		if m == nil {
			return nil, fmt.Errorf("parser: %s:%d: malformed section heading", name, i+1)
		}
		title, id := m[1], m[2]
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("parser: %s: duplicate section id %q", name, id)
		}
		seen[id] = struct{}{}
		i++

		if i >= len(lines) {
			return nil, fmt.Errorf("parser: %s: section %q missing annotation", name, id)
		}
		meta := metaRe.FindStringSubmatch(lines[i])
		if meta == nil {
			return nil, fmt.Errorf("parser: %s:%d: malformed annotation for section %q", name, i+1, id)
		}
		i++

		conf, err := strconv.ParseFloat(meta[2], 64)
		if err != nil || conf < 0 || conf > 1 {
			return nil, fmt.Errorf("parser: %s: section %q: confidence out of range: %s", name, id, meta[2])
		}
		uses, err := strconv.Atoi(meta[3])
		if err != nil {
			return nil, fmt.Errorf("parser: %s: section %q: bad usage count: %s", name, id, meta[3])
		}
		turn, err := strconv.Atoi(meta[4])
		if err != nil {
			return nil, fmt.Errorf("parser: %s: section %q: bad turn: %s", name, id, meta[4])
		}

		// Content runs until the next heading. The "---" divider is
		// only stripped when a heading actually follows it; a last
		// section's content is taken whole.
		var body []string
		for i < len(lines) && !strings.HasPrefix(lines[i], "## ") {
			body = append(body, lines[i])
			i++
		}
		if i < len(lines) {
			body = trimDivider(body)
		}
		content := unescapeBody(strings.Trim(strings.Join(body, "\n"), "\n"))
		if content == "" {
			return nil, fmt.Errorf("parser: %s: section %q has empty content", name, id)
		}

		f.Sections = append(f.Sections, &models.Section{
			ID:          id,
			File:        name,
			Title:       title,
			Content:     content,
			Tags:        parseTags(meta[1]),
			UsageCount:  uses,
			Confidence:  conf,
			LastUpdated: turn,
		})
	}
	return f, nil
}

// trimDivider drops the inter-section divider and its surrounding
// blank lines from the tail of body. Content dividers are escaped on
// render, so a bare trailing "---" here is always structure.
func trimDivider(body []string) []string {
	n := len(body)
	for n > 0 && strings.TrimSpace(body[n-1]) == "" {
		n--
	}
	if n > 0 && body[n-1] == "---" {
		n--
	}
	return body[:n]
}

func unescapeBody(content string) string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, `\`) {
			lines[i] = l[1:]
		}
	}
	return strings.Join(lines, "\n")
}

func parseTags(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
