package dashboard

import "html/template"

const palette = `*{margin:0;padding:0;box-sizing:border-box}
:root{
  --bg:#0a0a0f;--surface:#12121a;--surface2:#1a1a26;--border:#2a2a3a;
  --text:#e0e0ee;--text2:#8888aa;--text3:#555570;
  --accent:#6366f1;--accent-light:#818cf8;--accent-dim:#4f46e5;
  --danger:#ef4444;--success:#22c55e;--warn:#f59e0b;
  --mono:'SF Mono','Fira Code','JetBrains Mono',monospace;
  --sans:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;
}
`

var loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>wafwatch · dashboard</title>
<style>
` + palette + `
body{font-family:var(--sans);background:var(--bg);color:var(--text);min-height:100vh;display:flex;align-items:center;justify-content:center}
.login-card{background:var(--surface);border:1px solid var(--border);border-radius:12px;padding:48px 40px;max-width:400px;width:100%;text-align:center}
.logo{font-family:var(--mono);font-size:1.5rem;font-weight:700;letter-spacing:-0.5px;margin-bottom:8px}
.logo span{color:var(--accent-light)}
.subtitle{color:var(--text2);font-size:0.85rem;margin-bottom:32px}
.help{color:var(--text3);font-size:0.78rem;margin-bottom:24px;line-height:1.6}
.help code{background:var(--surface2);padding:2px 6px;border-radius:4px;font-family:var(--mono);font-size:0.75rem;color:var(--accent-light)}
input[type=text]{
  width:100%;padding:14px 16px;background:var(--bg);border:1px solid var(--border);
  border-radius:8px;color:var(--text);font-family:var(--mono);font-size:1.2rem;
  text-align:center;letter-spacing:4px;outline:none;
}
input[type=text]:focus{border-color:var(--accent)}
button{width:100%;padding:12px;margin-top:16px;background:var(--accent);color:#fff;border:none;border-radius:8px;font-size:0.9rem;font-weight:600;cursor:pointer}
button:hover{background:var(--accent-dim)}
.error{color:var(--danger);font-size:0.82rem;margin-top:12px}
</style>
</head>
<body>
<div class="login-card">
  <div class="logo">waf<span>watch</span></div>
  <div class="subtitle">Dashboard Access</div>
  <p class="help">Enter the access code shown in your terminal.<br>Run <code>wafwatch serve</code> to get a code.</p>
  <form method="POST" action="/dashboard/login" autocomplete="off">
    <input type="text" name="code" placeholder="00000000" maxlength="8" pattern="\d{8}" inputmode="numeric" autofocus required>
    <button type="submit">Authenticate</button>
  </form>
  {{if .}}{{if .Error}}<p class="error">{{.Error}}</p>{{end}}{{end}}
</div>
</body>
</html>`))

const layoutHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>wafwatch · live</title>
<script src="https://unpkg.com/htmx.org@2.0.4" integrity="sha384-HGfztofotfshcF7+8n44JQL2oJmowVChPTg48S+jvZoztPfvwD79OC/LTtG6dMp+" crossorigin="anonymous"></script>
<script src="https://unpkg.com/idiomorph@0.7.3/dist/idiomorph-ext.min.js"></script>
<style>
` + palette + `
body{font-family:var(--sans);background:var(--bg);color:var(--text);min-height:100vh}
nav{background:var(--surface);border-bottom:1px solid var(--border);padding:0 24px;display:flex;align-items:center;height:52px}
nav .logo{font-family:var(--mono);font-size:1.1rem;font-weight:700;color:var(--text);text-decoration:none}
nav .logo span{color:var(--accent-light)}
nav .spacer{flex:1}
nav form button{background:none;border:none;color:var(--text3);cursor:pointer;font-size:0.78rem}
main{max-width:1100px;margin:0 auto;padding:32px 24px}
.controls{display:flex;gap:12px;margin-bottom:24px}
.controls button{padding:8px 16px;background:var(--surface2);color:var(--text2);border:1px solid var(--border);border-radius:6px;font-size:0.82rem;cursor:pointer}
.controls button:hover{background:var(--accent-dim);color:#fff}
.controls button.danger:hover{background:var(--danger)}
.stale{background:#f59e0b20;color:var(--warn);border:1px solid var(--warn);border-radius:8px;padding:10px 16px;margin-bottom:16px;font-size:0.82rem}
.stats{display:grid;grid-template-columns:repeat(4,1fr);gap:16px;margin-bottom:16px}
.stat-card{background:var(--surface);border:1px solid var(--border);border-radius:10px;padding:20px}
.stat-card h3{color:var(--text3);font-size:0.72rem;text-transform:uppercase;letter-spacing:1px;margin-bottom:6px}
.stat-value{font-family:var(--mono);font-size:1.8rem;font-weight:700}
.stat-card.allowed .stat-value{color:var(--success)}
.stat-card.blocked .stat-value{color:var(--danger)}
.stat-card.rate .stat-value{color:var(--warn)}
.last-updated{color:var(--text3);font-size:0.75rem;margin-bottom:24px}
.events{background:var(--surface);border:1px solid var(--border);border-radius:10px;padding:20px}
.events h2{font-size:0.95rem;font-weight:600;margin-bottom:16px}
.no-events{color:var(--text3);text-align:center;padding:40px 0;font-size:0.85rem}
.event-card{border-left:3px solid var(--success);background:var(--surface2);border-radius:6px;padding:12px 16px;margin-bottom:10px;font-size:0.8rem}
.event-card.blocked{border-left-color:var(--danger)}
.event-header{display:flex;gap:12px;margin-bottom:6px;font-family:var(--mono)}
.event-action.blocked{color:var(--danger);font-weight:700}
.event-action.allowed{color:var(--success)}
.event-time{color:var(--text3);margin-left:auto}
.event-row{color:var(--text2);margin-top:2px}
.event-row strong{color:var(--text3);font-weight:500;margin-right:4px}
.event-row span{margin-right:12px}
.malicious{color:var(--danger)}
.suspicious{color:var(--warn)}
.benign{color:var(--success)}
</style>
</head>
<body>
<nav>
  <a class="logo" href="/dashboard">waf<span>watch</span></a>
  <div class="spacer"></div>
  <form method="POST" action="/dashboard/logout"><button type="submit">log out</button></form>
</nav>
<main>
`

const layoutFoot = `</main>
<script>
(function(){
  var view = document.getElementById('view');
  var src = new EventSource('/dashboard/api/stream');
  // Morph rather than replace so cards keyed by id="event-<id>" keep
  // their DOM nodes across updates.
  src.addEventListener('view', function(e){
    Idiomorph.morph(view, e.data, {morphStyle: 'innerHTML'});
    htmx.process(view);
  });
})();
</script>
</body>
</html>`

const viewPartial = `{{define "view"}}
{{- if .Stale}}<div class="stale">&#9888; {{.Stale.Message}}{{if .Stale.Since}} (last success {{.Stale.Since}}){{end}}</div>{{end}}
<div class="controls">
  <button hx-post="/dashboard/api/autorefresh" hx-swap="morph:innerHTML" hx-target="#view">{{.Controls.ToggleLabel}}</button>
  <button hx-post="/dashboard/api/refresh" hx-swap="morph:innerHTML" hx-target="#view">{{.Controls.RefreshLabel}}</button>
  <button class="danger" hx-post="/dashboard/api/clear" hx-swap="morph:innerHTML" hx-vals='{"confirm":"yes"}' hx-confirm="{{.ClearPrompt}}" hx-target="#view">{{.Controls.ClearLabel}}</button>
</div>
<div class="stats">
{{- range .Cards}}
  <div class="stat-card {{.Class}}" id="stat-{{.Key}}"><h3>{{.Title}}</h3><div class="stat-value">{{.Value}}</div></div>
{{- end}}
</div>
{{if .HasLastUpdated}}<div class="last-updated">Last updated: {{.LastUpdated}}</div>{{end}}
<div class="events">
  <h2>Recent Events</h2>
  {{- if .Empty}}
  <div class="no-events">{{.Placeholder}}</div>
  {{- else}}
  <div class="events-list">
  {{- range .Events}}
    <div class="event-card {{.ActionClass}}" id="event-{{.Key}}">
      <div class="event-header">
        <span class="event-id">#{{.Key}}</span>
        <span class="event-action {{.ActionClass}}">{{.ActionLabel}}</span>
        <span class="event-time">{{.Time}}</span>
      </div>
      <div class="event-row"><strong>Method:</strong><span>{{.Method}}</span><strong>Path:</strong><span>{{.Path}}</span>{{if .Query}}<strong>Query:</strong><span>{{.Query}}</span>{{end}}</div>
      <div class="event-row"><strong>Client IP:</strong><span>{{.ClientIP}}</span><strong>ESP IP:</strong><span>{{.ESPIP}}</span></div>
      <div class="event-row"><strong>User-Agent:</strong><span>{{.UserAgent}}</span></div>
      <div class="event-row"><strong>Probability:</strong><span class="probability {{.ClassificationClass}}">{{.Probability}}</span><strong>Classification:</strong><span class="classification {{.ClassificationClass}}">{{.Classification}}</span></div>
    </div>
  {{- end}}
  </div>
  {{- end}}
</div>
{{end}}`

var viewTmpl = template.Must(template.New("partial").Parse(viewPartial))

var pageTmpl = template.Must(template.New("page").Parse(layoutHead + `<div id="view" hx-ext="morph">{{template "view" .}}</div>
` + layoutFoot + viewPartial))
