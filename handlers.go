package main

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatview-server/internal/platform"
	"chatview-server/internal/transcript"
	"chatview-server/internal/types"
	"chatview-server/templates"
)

// Request body size limits
const (
	maxBodySize = 4 * 1024 // the prefs form is the only POST
)

const viewerHeader = "X-Viewer-Id"

const generatedLayout = "January 2, 2006 3:04 PM"

type channelRenderer interface {
	RenderChannel(ctx context.Context, channelID string, viewer types.Viewer) (*transcript.Rendered, error)
}

type server struct {
	renderer channelRenderer
	baseURL  string
	pages    *pageTemplates
	// loc is used for viewers without a timezone preference.
	loc *time.Location
	now func() time.Time
}

func newServer(renderer channelRenderer, baseURL, defaultTimezone string) *server {
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return &server{
		renderer: renderer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		pages:    loadPageTemplates(),
		loc:      loc,
		now:      time.Now,
	}
}

func (s *server) location(prefs types.Preferences) *time.Location {
	if prefs.Timezone == "" {
		return s.loc
	}
	return prefs.Location()
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /channels/{id}", securityHeaders(s.channelHandler))
	mux.HandleFunc("GET /channels/{id}/qr.png", securityHeaders(s.qrHandler))
	mux.HandleFunc("POST /prefs", securityHeaders(limitBody(s.prefsHandler, maxBodySize)))
	mux.HandleFunc("GET /static/transcript.js", scriptHandler)
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/", securityHeaders(s.notFoundHandler))
	return RequestLoggingMiddleware(mux)
}

// limitBody wraps an HTTP handler to limit request body size
func limitBody(next http.HandlerFunc, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next(w, r)
	}
}

// securityHeaders wraps an HTTP handler to add security headers
func securityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Avatars, emoji and attachments come from the platform CDN; styles are
		// inlined in the page shell.
		csp := "default-src 'self'; " +
			"img-src * data:; " +
			"media-src *; " +
			"style-src 'self' 'unsafe-inline'; " +
			"script-src 'self'; " +
			"form-action 'self'"
		w.Header().Set("Content-Security-Policy", csp)
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next(w, r)
	}
}

// viewerFromRequest builds the viewer from the identity header set by the
// authenticating proxy and the prefs cookie.
func viewerFromRequest(r *http.Request) types.Viewer {
	return types.Viewer{
		ID:          strings.TrimSpace(r.Header.Get(viewerHeader)),
		Preferences: prefsFromRequest(r),
	}
}

// validChannelID accepts platform snowflakes only.
func validChannelID(id string) bool {
	if id == "" || len(id) > 20 {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (s *server) channelHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validChannelID(id) {
		s.errorPage(w, r, http.StatusNotFound, "Channel not found", "There is no channel at this address.")
		return
	}
	viewer := viewerFromRequest(r)
	fragment := r.URL.Query().Get("fragment") == "1"

	rendered, err := s.renderer.RenderChannel(r.Context(), id, viewer)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	// Page and fragment bodies differ, so they carry distinct tags.
	etag := rendered.ETag
	if !fragment {
		etag = strings.TrimSuffix(etag, `"`) + `-page"`
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Header().Set("Vary", "Cookie, "+viewerHeader)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	path := "/channels/" + url.PathEscape(id)
	data := pageData{
		Title:       "#" + rendered.Channel.Name,
		SiteName:    siteName,
		Generated:   s.now().In(s.location(viewer.Preferences)).Format(generatedLayout),
		Channel:     &rendered.Channel,
		FragmentURL: path + "?fragment=1",
		QRURL:       path + "/qr.png",
		ReturnURL:   path,
		Prefs:       viewer.Preferences,
		Transcript:  template.HTML(rendered.HTML),
		ETag:        rendered.ETag,
	}
	if fragment {
		write(w, r, s.pages.fragment, "fragment", http.StatusOK, data)
		return
	}
	write(w, r, s.pages.page, "base", http.StatusOK, data)
}

// etagMatches implements the If-None-Match list comparison, weak tags included.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

func (s *server) qrHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validChannelID(id) {
		http.NotFound(w, r)
		return
	}
	png, err := channelQR(s.baseURL + "/channels/" + url.PathEscape(id))
	if err != nil {
		LoggerFromContext(r.Context()).Error("failed to generate QR code", "channel_id", id, "error", err)
		http.Error(w, "could not generate QR code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(png)
}

func (s *server) prefsHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	prefs := types.Preferences{
		ShowImages:     r.PostForm.Get("show_images") == "1",
		ShowAnimations: r.PostForm.Get("show_animations") == "1",
		Timezone:       strings.TrimSpace(r.PostForm.Get("timezone")),
	}
	if prefs.Timezone != "" {
		if _, err := time.LoadLocation(prefs.Timezone); err != nil {
			LoggerFromContext(r.Context()).Debug("ignoring unknown timezone", "timezone", prefs.Timezone)
			prefs.Timezone = ""
		}
	}
	setPrefsCookie(w, r, prefs)
	http.Redirect(w, r, localRedirect(r.PostForm.Get("return_url")), http.StatusSeeOther)
}

// localRedirect keeps redirects on this site.
func localRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return "/"
	}
	return target
}

func (s *server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.errorPage(w, r, http.StatusNotFound, "Not found", "There is nothing at this address.")
}

// renderError maps a render failure onto a status and an error page.
func (s *server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	log := LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, transcript.ErrNoViewer):
		s.errorPage(w, r, http.StatusUnauthorized, "Sign in required", "This channel belongs to a server; sign in to read it.")
	case errors.Is(err, platform.ErrForbidden):
		s.errorPage(w, r, http.StatusForbidden, "No access", "You do not have access to this channel.")
	case errors.Is(err, platform.ErrNotFound):
		s.errorPage(w, r, http.StatusNotFound, "Channel not found", "This channel does not exist or was deleted.")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Debug("render abandoned", "error", err)
		s.errorPage(w, r, http.StatusServiceUnavailable, "Try again", "The transcript took too long to load.")
	case errors.Is(err, transcript.ErrChannelAccess):
		log.Warn("channel unavailable", "error", err)
		s.errorPage(w, r, http.StatusBadGateway, "Channel unavailable", "The chat platform could not be reached. Try again shortly.")
	default:
		log.Error("render failed", "error", err)
		s.errorPage(w, r, http.StatusInternalServerError, "Something went wrong", "The transcript could not be rendered.")
	}
}

func (s *server) errorPage(w http.ResponseWriter, r *http.Request, status int, heading, message string) {
	write(w, r, s.pages.errPage, "base", status, pageData{
		Title:     heading,
		SiteName:  siteName,
		Generated: s.now().In(s.loc).Format(generatedLayout),
		Heading:   heading,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func scriptHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write([]byte(templates.TranscriptScript))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
