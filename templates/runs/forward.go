package runs

// Forward renders a run whose last message is forwarded.
var Forward = `{{define "run-forward"}}
<section class="run run-forward" id="run-{{.ID}}">
  {{template "run-header" .}}
  <div class="forward-indicator">Forwarded</div>
  <div class="run-messages">{{.Body}}</div>
</section>
{{end}}`

// ForwardMention renders a forwarded run that also mentions the viewer.
var ForwardMention = `{{define "run-forward-mention"}}
<section class="run run-forward run-mention" id="run-{{.ID}}" aria-label="Mentions you">
  <div class="mention-indicator"></div>
  {{template "run-header" .}}
  <div class="forward-indicator">Forwarded</div>
  <div class="run-messages">{{.Body}}</div>
</section>
{{end}}`
