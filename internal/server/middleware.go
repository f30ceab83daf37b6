package server

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/cache"
	"github.com/ButyrinIA/blog/internal/metrics"
	"github.com/ButyrinIA/blog/internal/paginate"
	"github.com/ButyrinIA/blog/internal/service"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// routeInfo is filled in by the router once a route matched, so the outer
// middleware can label metrics with the route template.
type routeInfo struct {
	template string
}

type routeInfoKey struct{}

const unmatchedRoute = "unmatched"

// observe logs and measures every request, matched or not.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &routeInfo{template: unmatchedRoute}
		sw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), routeInfoKey{}, info)))

		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		duration := time.Since(start)
		metrics.ObserveRequest(info.template, sw.status, duration)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", info.template,
			"status", sw.status,
			"duration", duration,
		)
	})
}

// recordRoute runs inside the router and publishes the matched template.
func recordRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := r.Context().Value(routeInfoKey{}).(*routeInfo); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					info.template = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				s.serverError(w, r)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withLoaders gives every request its own author/group batch loaders.
func (s *Server) withLoaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := service.WithLoaders(r.Context(), service.NewLoaders(s.blog.Store()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}

// maxCachedPage bounds the pages the index cache stores per viewer.
const maxCachedPage = 100

// pageKey reads the page number the way the listing does and returns the
// cache key for it. ok is false for numbers outside 1..maxCachedPage,
// which are served uncached.
func pageKey(prefix string, r *http.Request) (key string, ok bool) {
	page := paginate.ParseNumber(r.URL.Query().Get("page"))
	if page < 1 || page > maxCachedPage {
		return "", false
	}
	return cache.PageKey(prefix, auth.ViewerKey(r.Context()), page), true
}

// cachePage serves GET responses from the page cache. Only 200 responses
// are stored; cache failures fall through to the handler.
func (s *Server) cachePage(prefix string, ttl time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		key, cacheable := pageKey(prefix, r)
		if !cacheable {
			next.ServeHTTP(w, r)
			return
		}

		body, ok, err := s.cache.Get(r.Context(), key)
		switch {
		case err != nil:
			metrics.CacheLookup(metrics.CacheError)
			s.logger.Warn("page cache lookup failed", "key", key, "error", err)
			next.ServeHTTP(w, r)
			return
		case ok:
			metrics.CacheLookup(metrics.CacheHit)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
		metrics.CacheLookup(metrics.CacheMiss)

		bw := &bufferedWriter{header: w.Header()}
		next.ServeHTTP(bw, r)
		if bw.status == 0 {
			bw.status = http.StatusOK
		}

		if bw.status == http.StatusOK {
			if err := s.cache.Set(r.Context(), key, bw.body.Bytes(), ttl); err != nil {
				s.logger.Warn("page cache store failed", "key", key, "error", err)
			}
			w.Header().Set("X-Cache", "MISS")
		}
		w.WriteHeader(bw.status)
		_, _ = bw.body.WriteTo(w)
	})
}
