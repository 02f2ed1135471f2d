package main

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"chatview-server/internal/types"
	"chatview-server/templates"
)

const siteName = "chatview"

// pageData feeds both the channel page and the error page.
type pageData struct {
	Title      string
	SiteName   string
	Generated  string
	Standalone bool

	Channel     *types.Channel
	FragmentURL string
	QRURL       string
	ReturnURL   string
	Prefs       types.Preferences
	Transcript  template.HTML
	ETag        string

	Heading   string
	Message   string
	RequestID string
}

type pageTemplates struct {
	page     *template.Template
	fragment *template.Template
	errPage  *template.Template
}

// Compiled once at startup; a template error is a programming error.
func loadPageTemplates() *pageTemplates {
	p := &pageTemplates{
		page: template.Must(template.New("page").Parse(
			templates.GetBaseTemplates() + templates.GetTranscriptTemplate())),
		fragment: template.Must(template.New("fragment").Parse(
			templates.GetFragmentTemplate() + templates.GetTranscriptTemplate())),
		errPage: template.Must(template.New("error").Parse(
			templates.GetBaseTemplates() + templates.GetErrorTemplate())),
	}
	slog.Debug("page templates compiled")
	return p
}

// write renders name from t into a buffer first so a template failure can
// still produce a clean 500.
func write(w http.ResponseWriter, r *http.Request, t *template.Template, name string, status int, data pageData) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		LoggerFromContext(r.Context()).Error("template execution failed", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		w.Write(buf.Bytes())
	}
}
