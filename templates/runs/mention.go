package runs

// Mention renders a run whose last message mentions the viewer.
var Mention = `{{define "run-mention"}}
<section class="run run-mention" id="run-{{.ID}}" aria-label="Mentions you">
  <div class="mention-indicator"></div>
  {{template "run-header" .}}
  <div class="run-messages">{{.Body}}</div>
</section>
{{end}}`
