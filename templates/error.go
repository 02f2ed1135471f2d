package templates

// GetErrorTemplate returns the "content" block for error pages. Parsed with
// the base templates.
func GetErrorTemplate() string {
	return errorTemplate
}

var errorTemplate = `{{define "content"}}<div class="error-page" role="alert">
  <h2>{{.Heading}}</h2>
  <p>{{.Message}}</p>
  {{if .RequestID}}<p class="request-id">Request {{.RequestID}}</p>{{end}}
</div>{{end}}`
