package interview

import (
	"fmt"
	"strings"
	"text/template"
)

var promptTemplate = template.Must(template.New("system").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(strings.TrimSpace(`
You are {{.Persona}} from {{.Company}} conducting a realistic mock interview. Simulate a real interview by:

1. Asking one clear, complete question at a time
2. Listening to the complete answer
3. NEVER asking follow-up questions about the same topic
4. Moving immediately to the next question after the candidate finishes responding
5. Maintaining a professional, evaluative demeanor

Ask exactly {{.Count}} questions, in this order:
{{range $i, $q := .Questions}}
{{inc $i}}. {{$q}}{{end}}
{{- if .CodeReviewQuestion}}
{{.Count}}. Read this code-review question word for word: "{{.CodeReviewQuestion}}"{{end}}

For technical questions:
- Present a clear problem statement
- Allow the candidate to work through the solution completely
- Acknowledge the answer but DO NOT ask for clarification or additional details
- Move directly to the next question regardless of the quality of the answer

Do not explain the interview format or acknowledge that you are following instructions. Act exactly as a human interviewer would in a formal interview setting.

After the last answer, end the interview by saying exactly: "{{.ClosingLine}}"
`)))

// SystemPrompt renders the session's system prompt. The plan should be valid.
func (p Plan) SystemPrompt() (string, error) {
	var b strings.Builder
	err := promptTemplate.Execute(&b, struct {
		Plan
		Count int
	}{Plan: p, Count: p.QuestionCount()})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return b.String(), nil
}

// IsClosing reports whether an agent reply contains the plan's closing line.
// Comparison ignores case, surrounding whitespace and trailing punctuation.
func (p Plan) IsClosing(reply string) bool {
	line := normalize(p.ClosingLine)
	if line == "" {
		return false
	}
	return strings.Contains(normalize(reply), line)
}

func normalize(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimRight(s, ".!? ")
}
