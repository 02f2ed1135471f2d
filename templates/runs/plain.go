package runs

// Plain renders a run whose last message is neither forwarded nor mentions the viewer.
var Plain = `{{define "run-plain"}}
<section class="run" id="run-{{.ID}}">
  {{template "run-header" .}}
  <div class="run-messages">{{.Body}}</div>
</section>
{{end}}`
