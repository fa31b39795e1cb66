package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"absencetracker/internal/apiclient"
	"absencetracker/internal/attendance"
	"absencetracker/internal/auth"
	"absencetracker/internal/config"
	"absencetracker/internal/grid"
	"absencetracker/internal/session"
	"absencetracker/internal/store"
)

var errNotLoggedIn = errors.New("not logged in; run `absentctl login` first")

// app holds the client-side components one command invocation works with.
type app struct {
	log      *slog.Logger
	registry *prometheus.Registry
	client   *apiclient.Client
	session  *session.Store
	records  *attendance.Store
	grid     *grid.Controller
	closers  []func() error
}

func newApp(cfg config.App, logOut io.Writer) (*app, error) {
	a := &app{
		log:      slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.LogLevel})),
		registry: prometheus.NewRegistry(),
	}

	opts := []apiclient.Option{apiclient.WithMetrics(apiclient.NewMetrics(a.registry))}
	if cfg.APIRPS > 0 {
		opts = append(opts, apiclient.WithLimiter(rate.NewLimiter(rate.Limit(cfg.APIRPS), cfg.APIRPS)))
	}
	a.client = apiclient.New(cfg.APIBaseURL, cfg.APITimeout, opts...)

	tokens, err := a.tokenStore(cfg)
	if err != nil {
		return nil, err
	}
	a.session = session.New(a.client, a.client, tokens, session.WithLogger(a.log))
	a.records = attendance.NewStore(a.client, attendance.WithLogger(a.log), attendance.WithObserver(a.resync))
	a.grid = grid.New(a.records, grid.WithLogger(a.log))
	return a, nil
}

func (a *app) tokenStore(cfg config.App) (session.TokenStore, error) {
	switch cfg.TokenBackend {
	case "file", "":
		return session.NewFileTokenStore(cfg.TokenDir), nil
	case "redis":
		rdb := store.NewRedis(cfg.RedisAddr)
		a.closers = append(a.closers, rdb.Close)
		return session.NewRedisTokenStore(rdb.Client, session.TokenKey), nil
	default:
		return nil, fmt.Errorf("unknown TOKEN_BACKEND %q (want file or redis)", cfg.TokenBackend)
	}
}

// resync keeps the grid showing the signed-in user's rows.
func (a *app) resync(snap attendance.Snapshot) {
	if user, ok := a.session.Current(); ok {
		a.grid.Sync(snap.ForUser(user.ID))
	}
}

// signedIn restores the persisted session and loads the user's records.
func (a *app) signedIn(ctx context.Context) (auth.Identity, error) {
	if err := a.session.Restore(ctx); err != nil {
		if errors.Is(err, auth.ErrMalformedCredential) {
			return auth.Identity{}, fmt.Errorf("%w (stored credential was unreadable)", errNotLoggedIn)
		}
		return auth.Identity{}, err
	}
	user, ok := a.session.Current()
	if !ok {
		return auth.Identity{}, errNotLoggedIn
	}
	if err := a.records.FetchAll(ctx); err != nil {
		return auth.Identity{}, err
	}
	return user, nil
}

func (a *app) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, a.registry)
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
