package categorize

import (
	"fmt"
	"strings"
)

// SystemInstruction describes the taxonomy and the output contract.
func SystemInstruction(labels []string) string {
	var b strings.Builder
	b.WriteString("You categorise UK bank transactions for a personal finance ledger.\n\n")
	b.WriteString("Assign every transaction exactly ONE of these categories:\n")
	for _, l := range labels {
		b.WriteString("- " + l + "\n")
	}
	b.WriteString("\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Use the category names exactly as written above.\n")
	b.WriteString("2. If you are unsure, use \"Uncategorized\".\n")
	b.WriteString("3. Return ONLY a JSON array of strings, one category per transaction, in the same order as the input.\n")
	b.WriteString("4. The array must have exactly as many elements as there are transactions.\n")
	b.WriteString("5. Do NOT wrap the response in code fences or add any other text.\n")
	return b.String()
}

// BatchPrompt numbers the descriptions of one batch.
func BatchPrompt(descriptions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Categorise each of these %d bank transactions:\n", len(descriptions))
	for i, d := range descriptions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, oneLine(d))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Return a JSON array of %d categories, in order.\n", len(descriptions))
	b.WriteString("Example: [\"Groceries\", \"Transport\", \"Insurance\"]\n")
	return b.String()
}

// oneLine collapses whitespace so a description cannot break the numbering.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the opening fence line (``` or ```json).
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
