package transcript

import (
	"html/template"
	"strings"
	"sync"

	"chatview-server/templates"
)

// Run template names. Exactly one is chosen per run from the last message's
// forward and mention flags.
const (
	templatePlain          = "run-plain"
	templateMention        = "run-mention"
	templateForward        = "run-forward"
	templateForwardMention = "run-forward-mention"

	templateDispatcher = "run-dispatcher"
)

func selectTemplate(forward, mention bool) string {
	switch {
	case forward && mention:
		return templateForwardMention
	case forward:
		return templateForward
	case mention:
		return templateMention
	}
	return templatePlain
}

// runView is the data for a run template.
type runView struct {
	RenderTemplate string
	ID             string
	AuthorID       string
	DisplayName    string
	Color          template.CSS
	AvatarURL      string
	Bot            bool
	TimeISO        string
	TimeLabel      string
	Body           template.HTML
}

// messageView is the data for one message block.
type messageView struct {
	ID         string
	Mention    bool
	TimeISO    string
	TimeFull   string
	TimeShort  string
	Reply      template.HTML
	Forward    template.HTML
	Content    template.HTML
	Jumbo      bool
	Edited     bool
	EditedFull string
	Extras     template.HTML
}

var (
	runTemplates     *template.Template
	runTemplatesOnce sync.Once
)

// getRunTemplates parses the run templates once. They are fixed strings, so a
// parse failure is a programming error.
func getRunTemplates() *template.Template {
	runTemplatesOnce.Do(func() {
		runTemplates = template.Must(template.New("runs").Parse(templates.GetRunTemplates()))
	})
	return runTemplates
}

func execute(name string, data any) (string, error) {
	var sb strings.Builder
	if err := getRunTemplates().ExecuteTemplate(&sb, name, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
