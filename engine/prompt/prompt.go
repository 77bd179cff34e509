// Package prompt builds the generation prompt from a question and the
// retrieved chunk texts.
package prompt

import "strings"

// Assemble returns the prompt for query grounded on texts, in the order
// given. Texts are not truncated.
func Assemble(query string, texts []string) string {
	var b strings.Builder
	b.WriteString("User question: ")
	b.WriteString(query)
	b.WriteString("\n\nRetrieved content:\n")
	for _, t := range texts {
		b.WriteString(t)
		b.WriteByte('\n')
	}
	return b.String()
}
