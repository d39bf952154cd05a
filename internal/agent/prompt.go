package agent

import (
	"fmt"
	"strings"

	"syllabiq/internal/retrieval"
)

func systemPrompt(cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a study assistant for students of the %s curriculum.\n\n", cfg.Name, cfg.Curriculum)
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Use the %s tool to look up course material before answering any question about it.\n", SearchToolName)
	b.WriteString("- For follow-up questions, resolve pronouns from the conversation and search with a standalone query.\n")
	b.WriteString("- Answer only from the retrieved content. Do not use outside knowledge and do not invent details.\n")
	fmt.Fprintf(&b, "- If the tool returns %q or the retrieved content does not answer the question, politely say that you cannot answer it from the course material.\n", retrieval.NoContext)
	fmt.Fprintf(&b, "- If the question is outside the %s syllabus, politely decline.\n", cfg.Curriculum)
	b.WriteString("- Keep answers clear and structured for exam preparation.\n")
	if cfg.Instruction != "" {
		b.WriteString("\n")
		b.WriteString(cfg.Instruction)
		b.WriteString("\n")
	}
	return b.String()
}
