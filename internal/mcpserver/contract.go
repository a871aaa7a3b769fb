package mcpserver

// FormatContract describes the canonical rendered form of a playbook
// file for MCP consumers that display or quote playbook content.
const FormatContract = `# Ansuz Playbook Format Contract

Every playbook file is rendered as one Markdown document.

## Structure

` + "```" + `markdown
# <file name>

## <section title> {#<section id>}
> tags: tag-one, tag-two | confidence: 0.70 | uses: 3 | turn: 12

Section body in standard Markdown.

---

## <next section title> {#<next id>}
> tags: - | confidence: 0.50 | uses: 0 | turn: 14

Next section body.
` + "```" + `

## Rules

1. **Section ids are stable.** The ` + "`" + `{#id}` + "`" + ` suffix on each heading is the
   address used by diffs (` + "`" + `file:id` + "`" + ` targets). Never invent or rewrite ids.
2. **The annotation line is machine-owned.** Tags, confidence, usage and
   turn are maintained by the curator; consumers read them, nothing else
   writes them.
3. **Tags** are lowercase, comma-separated; ` + "`" + `-` + "`" + ` means no tags.
4. **Confidence** is a two-decimal value in [0,1].
5. **Sections are separated** by a ` + "`" + `---` + "`" + ` divider line. Body lines
   that would read as structure (a ` + "`" + `## ` + "`" + ` heading, a bare ` + "`" + `---` + "`" + `,
   or a leading backslash) are stored backslash-escaped.
6. **All mutation goes through diffs.** These files are regenerated in
   full by the curator; hand edits will be overwritten on the next write.
`
