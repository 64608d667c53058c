package query

import (
	"fmt"
	"regexp"
	"strings"
)

const selectionSystemPrompt = "You are an expert at evaluating context relevance."

const synthesisSystemPrompt = "You are a knowledgeable AI assistant. Respond in clean Markdown with headings, bullet points, and summary."

const reasoningUnavailable = "No reasoning available (Gemini API does not return reasoning steps)"

func buildSelectionPrompt(contexts []Context, question string) string {
	var sb strings.Builder
	for i, c := range contexts {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "ID: %s\nHeading: %s\nContent: %s...\n", c.ID, c.Heading, truncate(c.Content, 500))
	}
	return fmt.Sprintf(`You are given %d context passages and a user query.
Select the TOP 3 most relevant context passages.

USER QUERY: %s

AVAILABLE CONTEXTS:
%s

Respond with ONLY JSON:
{"selected_ids": ["id1", "id2", "id3"]}`, len(contexts), question, sb.String())
}

func buildSynthesisPrompt(selected []Context, question string) string {
	var sb strings.Builder
	for i, c := range selected {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "### %s\n%s", c.Heading, c.Content)
	}
	return fmt.Sprintf("Use the following context to answer the question.\n\n%s\n\n**User Question:** %s", sb.String(), question)
}

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
