package runs

// Shared partials used by every run template.

// PartialRunHeader renders the author row shown once per run. Name, colour and
// avatar come from the run's last message; the time is the run's first.
var PartialRunHeader = `{{define "run-header"}}
<header class="run-header">
  {{if .AvatarURL}}<img class="avatar" src="{{.AvatarURL}}" alt="" width="40" height="40" loading="lazy">{{end}}
  <span class="author"{{if .Color}} style="{{.Color}}"{{end}} data-user-id="{{.AuthorID}}">{{.DisplayName}}</span>{{if .Bot}} <span class="bot-tag">BOT</span>{{end}}
  <time class="run-time" datetime="{{.TimeISO}}">{{.TimeLabel}}</time>
</header>
{{end}}`

// PartialMessage renders one message block inside a run.
var PartialMessage = `{{define "message"}}
<div class="message{{if .Mention}} message-mention{{end}}" id="m-{{.ID}}">
  {{.Reply}}
  <time class="message-time" datetime="{{.TimeISO}}" title="{{.TimeFull}}">{{.TimeShort}}</time>
  {{.Forward}}
  {{if .Content}}<div class="message-content{{if .Jumbo}} jumbo{{end}}">{{.Content}}{{if .Edited}} <span class="edited" title="{{.EditedFull}}">(edited)</span>{{end}}</div>{{end}}
  {{.Extras}}
</div>
{{end}}`

// PartialDateSeparator renders the divider before the first message of a day.
var PartialDateSeparator = `{{define "date-separator"}}
<div class="date-separator" role="separator"><span>{{.}}</span></div>
{{end}}`

// GetPartials returns all partial templates.
func GetPartials() string {
	return PartialRunHeader + PartialMessage + PartialDateSeparator
}
