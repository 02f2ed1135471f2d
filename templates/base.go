package templates

// Base template - the page shell around a channel transcript.
// Pages define the "content" block; the channel header is drawn only when
// the page has a channel. Standalone pages (offline exports) have no header
// and load no script.

func GetBaseTemplates() string {
	return baseTemplate + channelHeaderTemplate + prefsTemplate
}

var baseTemplate = `{{define "base"}}<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <meta name="color-scheme" content="light dark">
  <title>{{.Title}} - {{.SiteName}}</title>
  <style>` + pageStyle + `</style>
  {{if not .Standalone}}<script src="/static/transcript.js" defer></script>{{end}}
</head>
<body id="top">
  <a href="#main-content" class="skip-link">Skip to messages</a>
  <div class="container">
    {{if and .Channel (not .Standalone)}}{{template "channel-header" .}}{{end}}
    <main id="main-content">
      <h1 class="sr-only">{{.Title}}</h1>
      {{template "content" .}}
    </main>
    <footer class="page-footer">
      <span class="generated">Rendered {{.Generated}}</span>
    </footer>
  </div>
</body>
</html>
{{end}}`

var channelHeaderTemplate = `{{define "channel-header"}}
<header class="channel-header">
  <div class="channel-title">
    <span class="channel-hash" aria-hidden="true">#</span>
    <span class="channel-name">{{.Channel.Name}}</span>
    {{if .Channel.Topic}}<span class="channel-topic">{{.Channel.Topic}}</span>{{end}}
  </div>
  <nav class="channel-actions">
    <a href="{{.FragmentURL}}" class="refresh-link" data-transcript-refresh>Refresh</a>
    <details class="handoff">
      <summary>Open on phone</summary>
      <img src="{{.QRURL}}" width="192" height="192" alt="QR code linking to this channel" loading="lazy">
    </details>
    {{template "prefs-form" .}}
  </nav>
</header>
{{end}}`

var prefsTemplate = `{{define "prefs-form"}}
<details class="prefs">
  <summary>Display</summary>
  <form method="POST" action="/prefs" class="prefs-form">
    <input type="hidden" name="return_url" value="{{.ReturnURL}}">
    <label><input type="checkbox" name="show_images" value="1"{{if .Prefs.ShowImages}} checked{{end}}> Images</label>
    <label><input type="checkbox" name="show_animations" value="1"{{if .Prefs.ShowAnimations}} checked{{end}}> Animations</label>
    <label>Timezone <input type="text" name="timezone" value="{{.Prefs.Timezone}}" placeholder="Europe/Berlin" maxlength="64"></label>
    <button type="submit">Save</button>
  </form>
</details>
{{end}}`

var pageStyle = `
body{margin:0;font:15px/1.4 system-ui,sans-serif}
.container{max-width:960px;margin:0 auto;display:flex;flex-direction:column;min-height:100vh}
.skip-link,.sr-only{position:absolute;left:-9999px}
.skip-link:focus{left:8px;top:8px}
.channel-header{display:flex;justify-content:space-between;align-items:center;padding:8px 16px;border-bottom:1px solid #8884}
.channel-topic{margin-left:12px;opacity:.7}
.channel-actions{display:flex;gap:12px;align-items:center}
#main-content{flex:1;overflow-y:auto;padding:8px 16px}
.run{display:flex;gap:12px;margin-top:12px}
.run-avatar{border-radius:50%}
.run-author{font-weight:600}
.run-time,.message-time,.edited{font-size:12px;opacity:.6}
.message-mention{background:#faa61a1a;border-left:2px solid #faa61a}
.date-separator{display:flex;align-items:center;margin:16px 0;font-size:12px;opacity:.7}
.date-separator::before,.date-separator::after{content:"";flex:1;border-top:1px solid #8884;margin:0 8px}
.system-line{opacity:.7;margin:8px 0}
.spoiler{background:#888;color:transparent;border-radius:3px}
.spoiler:hover,.spoiler:focus{color:inherit;background:#8883}
.emoji{vertical-align:bottom}
.mention-chip{background:#5865f233;border-radius:3px;padding:0 2px}
code{background:#8882;border-radius:3px;padding:0 3px}
pre{background:#8882;padding:8px;overflow-x:auto}
blockquote{border-left:4px solid #8886;margin:0;padding-left:8px}
.reactions{display:flex;gap:4px;flex-wrap:wrap}
.reaction{border:1px solid #8884;border-radius:8px;padding:0 6px}
.reaction.me{border-color:#5865f2}
.poll-bar{height:4px;background:#8883}
.poll-bar-fill{height:100%;background:#5865f2}
.page-footer{font-size:12px;opacity:.6;padding:8px 16px}
`
