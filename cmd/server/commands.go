package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/config"
	"github.com/ButyrinIA/blog/internal/metrics"
	"github.com/ButyrinIA/blog/internal/server"
	"github.com/ButyrinIA/blog/internal/service"
)

func (a *app) serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the web server",
		Action: a.serve,
	}
}

func (a *app) serve(ctx context.Context, _ *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer a.close("storage", store)

	pages, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer a.close("page cache", pages)

	mediaStore, localMedia, err := a.openMedia(ctx)
	if err != nil {
		return err
	}

	blog := service.New(store, mediaStore, a.logger)
	opts := server.Options{
		Blog:     blog,
		Users:    auth.NewUsers(store),
		Sessions: auth.NewSessions([]byte(a.cfg.Auth.SessionKey), a.cfg.Auth.SecureCookies, store, a.logger),
		Tokens:   auth.NewTokens([]byte(a.cfg.Auth.AdminSecret), a.cfg.Auth.AdminTokenTTL),
		Cache:    pages,
		Media:    mediaStore,
		Logger:   a.logger,
	}
	var mediaHandler http.Handler
	if localMedia != nil {
		mediaHandler = localMedia.Handler()
	}
	opts.MediaHandler = mediaHandler

	srv, err := server.New(a.cfg, opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if a.cfg.Metrics.Enabled {
		ms := metrics.NewHTTPServer(a.cfg.Metrics.Addr, blog.Health, a.logger)
		g.Go(func() error { return ms.Run(gctx) })
	}
	return g.Wait()
}

func (a *app) groupCommand() *cli.Command {
	return &cli.Command{
		Name:  "group",
		Usage: "Manage groups",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a group",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "display title", Required: true},
					&cli.StringFlag{Name: "slug", Usage: "URL slug", Required: true},
					&cli.StringFlag{Name: "description", Usage: "free text description"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return a.withBlog(ctx, func(blog *service.Blog) error {
						group, err := blog.CreateGroup(ctx, c.String("title"), c.String("slug"), c.String("description"))
						if err != nil {
							return err
						}
						_, err = fmt.Fprintf(c.Root().Writer, "created group %d /group/%s/\n", group.ID, group.Slug)
						return err
					})
				},
			},
			{
				Name:  "delete",
				Usage: "Delete a group; its posts stay, without a group",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "slug", Usage: "URL slug", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return a.withBlog(ctx, func(blog *service.Blog) error {
						return blog.DeleteGroup(ctx, c.String("slug"))
					})
				},
			},
		},
	}
}

func (a *app) cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the page cache",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Drop every cached page",
				Action: func(ctx context.Context, _ *cli.Command) error {
					if a.cfg.Cache.Driver == config.CacheMemory {
						a.logger.Warn("the memory cache lives inside the server process; use POST /admin/cache/clear instead")
					}
					pages, err := a.openCache(ctx)
					if err != nil {
						return err
					}
					defer a.close("page cache", pages)
					if err := pages.Clear(ctx); err != nil {
						return err
					}
					a.logger.Info("page cache cleared")
					return nil
				},
			},
		},
	}
}

func (a *app) tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Admin API tokens",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "Print a bearer token for the admin endpoints",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Usage: "who the token is for", Value: "admin"},
				},
				Action: func(_ context.Context, c *cli.Command) error {
					tokens := auth.NewTokens([]byte(a.cfg.Auth.AdminSecret), a.cfg.Auth.AdminTokenTTL)
					token, err := tokens.Issue(c.String("subject"))
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.Root().Writer, token)
					return err
				},
			},
		},
	}
}

// withBlog opens storage for a one-shot command and closes it afterwards.
func (a *app) withBlog(ctx context.Context, fn func(*service.Blog) error) error {
	if a.cfg.Storage.Driver == config.StorageMemory {
		a.logger.Warn("memory storage does not outlive this command")
	}
	store, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer a.close("storage", store)
	return fn(service.New(store, nil, a.logger))
}

func (a *app) close(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		a.logger.Error("failed to close "+what, "error", err)
	}
}
