package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/connectbox/captiveportal/internal/adminlog"
)

// ─── Middleware ─────────────────────────────────────────────────────────────

// adminAuth enforces HTTP Basic Auth using WEB_ADMIN as the password.
// Username is ignored — any value is accepted.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.WebAdminPassword)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="captiveportal admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, adminHTML)
}

type clientView struct {
	ID                    string `json:"id"`
	LastSeenAt            int64  `json:"last_seen_at"` // unix timestamp, 0 if never seen
	AndroidOKAcknowledged bool   `json:"android_ok_acknowledged"`
	SecondsSinceLastSeen  int64  `json:"seconds_since_last_seen"`
}

func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{
		"version":                  version,
		"started_at":               s.startedAt.Unix(),
		"bind_address":             s.cfg.BindAddress,
		"local_url":                s.cfg.LocalURL,
		"client_id_source":         s.cfg.ClientIDSource.Kind,
		"max_assumed_session_secs": int(s.cfg.MaxAssumedSessionTime.Seconds()),
		"max_time_without_showing": int(s.cfg.MaxTimeWithoutShowing.Seconds()),
		"tracked_clients":          s.registry.Len(),
	}, http.StatusOK)
}

func (s *Server) handleAdminClients(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	snap := s.registry.Snapshot()
	views := make([]clientView, 0, len(snap))
	for id, state := range snap {
		var lastSeen int64
		if !state.LastSeenAt.IsZero() {
			lastSeen = state.LastSeenAt.Unix()
		}
		views = append(views, clientView{
			ID:                    id,
			LastSeenAt:            lastSeen,
			AndroidOKAcknowledged: state.AndroidOKAcknowledged,
			SecondsSinceLastSeen:  int64(now.Sub(state.LastSeenAt).Seconds()),
		})
	}
	jsonResponse(w, views, http.StatusOK)
}

func (s *Server) handleAdminForgetClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.engine.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminLogStream streams recent-then-live probe events as
// Server-Sent Events, one JSON object per event.
func (s *Server) handleAdminLogStream(w http.ResponseWriter, r *http.Request) {
	if s.adminLog == nil {
		http.Error(w, "admin log not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The stream outlives the server's WriteTimeout, so clear the write
	// deadline for this response (ignored where the writer can't do it).
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	if err := rc.Flush(); err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	history, ch, cancel := s.adminLog.Subscribe()
	defer cancel()

	for _, ev := range history {
		writeSSEEvent(w, ev)
	}
	rc.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, ev)
			rc.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev adminlog.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("admin log marshal failed", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
}

// ─── HTML template ──────────────────────────────────────────────────────────

const adminHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>captiveportal admin</title>
<style>
:root {
  --bg:#0d1117; --surface:#161b22; --surface2:#1c2128;
  --border:#30363d; --text:#e6edf3; --muted:#8b949e;
  --green:#3fb950; --blue:#58a6ff; --yellow:#d29922; --red:#f85149;
}
*{box-sizing:border-box;margin:0;padding:0}
body{background:var(--bg);color:var(--text);font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;font-size:14px;line-height:1.5}
.layout{max-width:900px;margin:0 auto;padding:24px 16px}
.header{display:flex;justify-content:space-between;align-items:center;margin-bottom:22px;padding-bottom:14px;border-bottom:1px solid var(--border)}
.header h1{font-size:18px;font-weight:600}
.vtag{font-size:11px;font-weight:400;color:var(--muted);background:var(--surface2);border:1px solid var(--border);border-radius:4px;padding:2px 8px;margin-left:8px}
.card{background:var(--surface);border:1px solid var(--border);border-radius:10px;padding:18px;margin-bottom:16px}
.card h2{font-size:11px;font-weight:600;color:var(--muted);text-transform:uppercase;letter-spacing:.06em;margin-bottom:12px}
.kv{display:grid;grid-template-columns:200px 1fr;gap:6px 12px}
.kv .k{color:var(--muted)}
.kv .v{font-family:'SF Mono',Consolas,monospace;font-size:12px}
table{width:100%;border-collapse:collapse;font-size:12px}
th,td{text-align:left;padding:6px 8px;border-bottom:1px solid var(--border)}
th{color:var(--muted);font-weight:500;text-transform:uppercase;font-size:10px;letter-spacing:.05em}
td.mono{font-family:monospace}
.badge{display:inline-block;padding:1px 7px;border-radius:10px;font-size:10px}
.badge-green{background:rgba(63,185,80,.15);color:var(--green)}
.badge-muted{background:rgba(139,148,158,.12);color:var(--muted)}
.rbtn{background:none;border:1px solid var(--border);border-radius:4px;padding:2px 8px;font-size:11px;cursor:pointer;color:var(--muted)}
.rbtn:hover{color:var(--red);border-color:var(--red)}
#log{background:#010409;border:1px solid var(--border);border-radius:6px;height:280px;overflow-y:auto;padding:10px 12px;font-family:monospace;font-size:11px;line-height:1.6}
.ll{white-space:pre-wrap;word-break:break-all}
</style>
</head>
<body>
<div class="layout">
<div class="header"><h1>captiveportal admin<span class="vtag" id="hdr-version"></span></h1></div>

<div class="card">
  <h2>Status</h2>
  <div class="kv" id="status-kv"></div>
</div>

<div class="card">
  <h2>Tracked Clients</h2>
  <table>
    <thead><tr><th>Client</th><th>Last seen</th><th>OK pressed</th><th></th></tr></thead>
    <tbody id="clients-body"></tbody>
  </table>
</div>

<div class="card">
  <h2>Recent Probes</h2>
  <div id="log"></div>
</div>

</div>
<script>
function esc(s){return String(s||'').replace(/&/g,'&amp;').replace(/</g,'&lt;').replace(/>/g,'&gt;');}

async function loadStatus(){
  const r = await fetch('/web/api/status');
  const d = await r.json();
  document.getElementById('hdr-version').textContent = 'v'+d.version;
  const kv = document.getElementById('status-kv');
  kv.innerHTML = '';
  function row(k,v){
    const ke=document.createElement('span');ke.className='k';ke.textContent=k;
    const ve=document.createElement('span');ve.className='v';ve.textContent=v;
    kv.appendChild(ke);kv.appendChild(ve);
  }
  row('Bind address', d.bind_address);
  row('Local URL', d.local_url);
  row('Client ID source', d.client_id_source);
  row('Max assumed session (s)', d.max_assumed_session_secs);
  row('Max time without showing (s)', d.max_time_without_showing);
  row('Tracked clients', d.tracked_clients);
}

async function loadClients(){
  const r = await fetch('/web/api/clients');
  const list = await r.json();
  const body = document.getElementById('clients-body');
  body.innerHTML = '';
  (list||[]).forEach(c => {
    const tr = document.createElement('tr');
    tr.innerHTML =
      '<td class="mono">'+esc(c.id)+'</td>'+
      '<td>'+c.seconds_since_last_seen+'s ago</td>'+
      '<td>'+(c.android_ok_acknowledged ? '<span class="badge badge-green">yes</span>' : '<span class="badge badge-muted">no</span>')+'</td>'+
      '<td><button class="rbtn" onclick="forgetClient(\''+esc(c.id)+'\')">forget</button></td>';
    body.appendChild(tr);
  });
}

async function forgetClient(id){
  await fetch('/web/api/clients/'+encodeURIComponent(id), {method:'DELETE'});
  loadClients();
}

function startLogStream(){
  const es = new EventSource('/web/api/log/stream');
  const logEl = document.getElementById('log');
  es.onmessage = (e) => {
    try {
      const ev = JSON.parse(e.data);
      const div = document.createElement('div');
      div.className = 'll';
      div.textContent = ev.time+'  '+ev.family.padEnd(16)+' '+ev.endpoint.padEnd(28)+' -> '+ev.decision+'  ['+ev.client_id+']';
      logEl.appendChild(div);
      logEl.scrollTop = logEl.scrollHeight;
    } catch {}
  };
}

loadStatus();
loadClients();
startLogStream();
setInterval(loadClients, 5000);
</script>
</body>
</html>`
