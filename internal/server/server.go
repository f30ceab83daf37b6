// Package server is the HTML front end of the blog.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/cache"
	"github.com/ButyrinIA/blog/internal/config"
	"github.com/ButyrinIA/blog/internal/media"
	"github.com/ButyrinIA/blog/internal/service"
)

const indexCachePrefix = "index_page"

// Options are the collaborators a Server is wired with.
type Options struct {
	Blog     *service.Blog
	Users    *auth.Users
	Sessions *auth.Sessions
	Tokens   *auth.Tokens
	Cache    cache.Cache
	Media    media.Store
	// MediaHandler serves uploads under the media URL prefix; nil when the
	// media store is public on its own.
	MediaHandler http.Handler
	Logger       *slog.Logger
}

type Server struct {
	cfg      *config.Config
	blog     *service.Blog
	users    *auth.Users
	sessions *auth.Sessions
	tokens   *auth.Tokens
	cache    cache.Cache
	media    media.Store
	render   *renderer
	logger   *slog.Logger
	handler  http.Handler
}

func New(cfg *config.Config, opts Options) (*Server, error) {
	r, err := newRenderer(opts.Media.URL)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		blog:     opts.Blog,
		users:    opts.Users,
		sessions: opts.Sessions,
		tokens:   opts.Tokens,
		cache:    opts.Cache,
		media:    opts.Media,
		render:   r,
		logger:   opts.Logger.With("component", "server"),
	}
	s.handler = s.routes(opts.MediaHandler)
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes(mediaHandler http.Handler) http.Handler {
	r := mux.NewRouter()
	r.Use(recordRoute)
	r.NotFoundHandler = http.HandlerFunc(s.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	login := auth.RequireLogin

	r.Handle("/", s.cachePage(indexCachePrefix, s.cfg.Cache.TTL, http.HandlerFunc(s.index))).Methods(http.MethodGet)
	r.HandleFunc("/group/{slug}/", s.groupPosts).Methods(http.MethodGet)
	r.Handle("/new/", login(http.HandlerFunc(s.newPost))).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/follow/", login(http.HandlerFunc(s.followIndex))).Methods(http.MethodGet)

	r.HandleFunc("/login/", s.login).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/signup/", s.signup).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout/", s.logout).Methods(http.MethodGet)

	if mediaHandler != nil {
		prefix := s.cfg.Media.URLPrefix
		r.PathPrefix(prefix).Handler(http.StripPrefix(prefix, mediaHandler)).Methods(http.MethodGet, http.MethodHead)
	}
	r.Handle("/admin/cache/clear", s.tokens.RequireAdmin(http.HandlerFunc(s.clearCache))).Methods(http.MethodPost)

	r.HandleFunc("/{username}/", s.profile).Methods(http.MethodGet)
	r.Handle("/{username}/follow/", login(http.HandlerFunc(s.profileFollow))).Methods(http.MethodGet)
	r.Handle("/{username}/unfollow/", login(http.HandlerFunc(s.profileUnfollow))).Methods(http.MethodGet)
	r.HandleFunc("/{username}/{post_id:[0-9]+}/", s.postView).Methods(http.MethodGet)
	r.Handle("/{username}/{post_id:[0-9]+}/edit/", login(http.HandlerFunc(s.postEdit))).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/{username}/{post_id:[0-9]+}/comment/", login(http.HandlerFunc(s.addComment))).Methods(http.MethodPost)
	r.Handle("/{username}/{post_id:[0-9]+}/delete/", login(http.HandlerFunc(s.deletePost))).Methods(http.MethodPost)

	var h http.Handler = r
	h = s.withLoaders(h)
	h = s.sessions.Middleware(h)
	h = s.recoverPanics(h)
	h = s.observe(h)
	return h
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
