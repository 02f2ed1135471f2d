package templates

// Fragment template - the transcript without the page shell. Served for
// ?fragment=1 so a client can swap a fresh transcript into #main-content.

// GetFragmentTemplate returns the fragment wrapper template.
// Parse together with the transcript content template.
func GetFragmentTemplate() string {
	return fragmentTemplate
}

var fragmentTemplate = `{{define "fragment"}}<h1 class="sr-only">{{.Title}}</h1>
{{template "content" .}}{{end}}`

// GetTranscriptTemplate returns the "content" block for a channel page.
func GetTranscriptTemplate() string {
	return transcriptTemplate
}

// The transcript HTML is composed and escaped upstream; the anchor it ends
// with is what transcript.js scrolls to.
var transcriptTemplate = `{{define "content"}}<div class="transcript" id="transcript" data-channel="{{.Channel.ID}}" data-etag="{{.ETag}}">
{{.Transcript}}
</div>{{end}}`

// TranscriptScript scrolls to the end anchor on load and after a fragment
// refresh. Served from /static/transcript.js so the CSP can stay script-src 'self'.
const TranscriptScript = `(function () {
  function toEnd() {
    var end = document.getElementById("transcript-end");
    if (end) end.scrollIntoView({block: "end"});
  }
  document.addEventListener("DOMContentLoaded", function () {
    toEnd();
    var link = document.querySelector("[data-transcript-refresh]");
    var main = document.getElementById("main-content");
    if (!link || !main || !window.fetch) return;
    link.addEventListener("click", function (ev) {
      ev.preventDefault();
      fetch(link.href, {headers: {"Accept": "text/html"}})
        .then(function (r) { return r.ok ? r.text() : Promise.reject(r.status); })
        .then(function (html) { main.innerHTML = html; toEnd(); })
        .catch(function () { window.location.reload(); });
    });
  });
})();
`
