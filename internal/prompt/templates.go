package prompt

import "github.com/opsmono/agentproxy/internal/models"

const personaBlock = `{{if .Persona}}{{.Persona}}

{{end}}`

const contextBlock = `{{if .Context}}

Additional context:
{{.Context}}{{end}}`

var taskTemplates = map[models.TaskKind]string{
	models.TaskGenerate: personaBlock + `Write {{.Language}} code for the following request.
{{if .Prompt}}
Request:
{{.Prompt}}
{{end}}{{if .Description}}
Description:
{{.Description}}
{{end}}` + contextBlock + `

Return only the code with brief inline comments where they help.`,

	models.TaskReview: personaBlock + `Review the following {{.Language}} code. Point out bugs, security issues, performance problems and style issues, ordered by severity, and suggest concrete fixes.

Code:
{{.Code}}` + contextBlock,

	models.TaskExplain: personaBlock + `Explain what the following {{.Language}} code does, step by step, for a reader who is learning the language.

Code:
{{.Code}}` + contextBlock,

	models.TaskDocument: personaBlock + `Write documentation for the following {{.Language}} code: a summary, parameters, return values, errors and a usage example, in the idiomatic doc comment style of the language.

Code:
{{.Code}}` + contextBlock,

	models.TaskTest: personaBlock + `Write unit tests for the following {{.Language}} code{{if .Framework}} using {{.Framework}}{{end}}. Cover normal cases, edge cases and error paths.

Code:
{{.Code}}` + contextBlock,

	models.TaskRefactor: personaBlock + `Refactor the following {{.Language}} code to improve readability and maintainability without changing its behavior.{{if .Instructions}}

Instructions:
{{.Instructions}}{{end}}

Code:
{{.Code}}` + contextBlock + `

Return the refactored code followed by a short list of the changes made.`,

	models.TaskDebug: personaBlock + `Find and fix the bug in the following {{.Language}} code.{{if .ErrorOutput}}

Observed error:
{{.ErrorOutput}}{{end}}{{if .Description}}

Expected behavior:
{{.Description}}{{end}}

Code:
{{.Code}}` + contextBlock + `

Explain the root cause, then give the corrected code.`,
}
