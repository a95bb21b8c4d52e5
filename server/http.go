package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/wfunc/crosskey/logger"
	"github.com/wfunc/crosskey/room"
)

const qrSize = 320

func securityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'")
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func (s *Server) serveHealthCheck(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	securityHeaders(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// versionInfo is the /version descriptor.
type versionInfo struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	CodeLen       int      `json:"codeLen"`
	AllowOrigins  []string `json:"allowOrigins"`
	Rooms         int      `json:"rooms"`
	UptimeSeconds int64    `json:"uptimeSeconds"`
}

func (s *Server) serveVersion(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	startTime := time.Now()

	origins := s.cfg.Server.AllowOrigins
	if origins == nil {
		origins = []string{}
	}
	info := versionInfo{
		Name:          "crosskey",
		Version:       s.version,
		CodeLen:       room.CodeLength,
		AllowOrigins:  origins,
		Rooms:         s.registry.Count(),
		UptimeSeconds: int64(s.monitor.Uptime() / time.Second),
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		logger.Log.Debugf("Failed to write version to %s: %v", realIP(r), err)
		return
	}

	logger.Log.Debugf("SERVE: Version to %s in %s", realIP(r), time.Since(startTime).Round(time.Microsecond))
}

// serveQR renders the join link for a room code as a PNG, for the display
// to show and the controller to scan.
func (s *Server) serveQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	code := room.NormalizeCode(p.ByName("code"))
	if !room.ValidCode(code) {
		http.Error(w, "bad room code", http.StatusBadRequest)
		return
	}

	png, err := qrcode.Encode(s.joinURL(r, code), qrcode.Medium, qrSize)
	if err != nil {
		logger.Log.Errorf("Failed to encode QR for %s: %v", code, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	securityHeaders(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// joinURL is <public_url or request origin>/?code=<code>.
func (s *Server) joinURL(r *http.Request, code string) string {
	base := strings.TrimRight(s.cfg.Server.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?code=" + code
}

func registerProfileHandlers(prefix string, mux *httprouter.Router) {
	mux.Handler("GET", prefix+"/pprof/allocs", pprof.Handler("allocs"))
	mux.Handler("GET", prefix+"/pprof/block", pprof.Handler("block"))
	mux.Handler("GET", prefix+"/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handler("GET", prefix+"/pprof/heap", pprof.Handler("heap"))
	mux.Handler("GET", prefix+"/pprof/mutex", pprof.Handler("mutex"))
	mux.Handler("GET", prefix+"/pprof/threadcreate", pprof.Handler("threadcreate"))
	mux.HandlerFunc("GET", prefix+"/pprof/cmdline", pprof.Cmdline)
	mux.HandlerFunc("GET", prefix+"/pprof/profile", pprof.Profile)
	mux.HandlerFunc("GET", prefix+"/pprof/symbol", pprof.Symbol)
	mux.HandlerFunc("GET", prefix+"/pprof/trace", pprof.Trace)
}
