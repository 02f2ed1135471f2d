package runs

// Dispatcher routes a run to its template based on .RenderTemplate, which the
// compositor computes from the run's last message.
var Dispatcher = `{{define "run-dispatcher"}}
{{- if eq .RenderTemplate "run-forward-mention"}}{{template "run-forward-mention" .}}
{{- else if eq .RenderTemplate "run-forward"}}{{template "run-forward" .}}
{{- else if eq .RenderTemplate "run-mention"}}{{template "run-mention" .}}
{{- else}}{{template "run-plain" .}}
{{- end}}
{{- end}}`

// GetAllTemplates returns all run templates concatenated for parsing.
func GetAllTemplates() string {
	return GetPartials() +
		Plain +
		Mention +
		Forward +
		ForwardMention +
		Dispatcher
}
