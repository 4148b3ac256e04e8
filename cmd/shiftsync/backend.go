package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/beekhof/shiftsync/internal/auth"
	"github.com/beekhof/shiftsync/internal/calendar"
	"github.com/beekhof/shiftsync/internal/config"
)

var noBrowser bool

// account is a signed-in calendar account of either backend.
type account interface {
	ListCalendars(ctx context.Context) ([]string, error)
	Open(ctx context.Context, cfg *config.Config) (calendar.Client, error)
}

// openCalendar signs in and opens the configured calendar.
var openCalendar = func(ctx context.Context, cfg *config.Config, prompt io.Writer) (calendar.Client, error) {
	acct, err := openAccount(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}
	return acct.Open(ctx, cfg)
}

func openAccount(ctx context.Context, cfg *config.Config, prompt io.Writer) (account, error) {
	switch cfg.Backend {
	case config.BackendGoogle:
		oauthConfig, err := auth.LoadOAuthConfig(cfg.Google.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load Google credentials: %w", err)
		}
		flow := auth.LoopbackFlow(prompt)
		if noBrowser {
			flow = auth.PasteFlow(os.Stdin, prompt)
		}
		store := auth.NewFileTokenStore(cfg.Google.TokenPath)
		httpClient, err := auth.Client(ctx, oauthConfig, store, flow, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate Google account: %w", err)
		}
		client, err := calendar.NewGoogleClient(ctx, httpClient, logger)
		if err != nil {
			return nil, err
		}
		return googleAccount{client}, nil
	default:
		client, err := calendar.NewCalDAVClient(cfg.CalDAV.ServerURL, cfg.CalDAV.Username, cfg.CalDAV.Password,
			calendar.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return caldavAccount{client}, nil
	}
}

type caldavAccount struct {
	*calendar.CalDAVClient
}

func (a caldavAccount) Open(ctx context.Context, cfg *config.Config) (calendar.Client, error) {
	cal, err := a.FindOrCreateCalendarByName(ctx, cfg.CalDAV.CalendarName, cfg.CalDAV.CreateCalendar, cfg.PublishedBy, cfg.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to open calendar %q: %w", cfg.CalDAV.CalendarName, err)
	}
	logger.Debug("Using CalDAV calendar", zap.String("url", cal.URL()))
	return cal, nil
}

type googleAccount struct {
	*calendar.GoogleClient
}

func (a googleAccount) Open(ctx context.Context, cfg *config.Config) (calendar.Client, error) {
	cal, err := a.FindOrCreateCalendarByName(ctx, cfg.Google.CalendarName, cfg.Google.CalendarColorID, true, cfg.PublishedBy, cfg.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to open calendar %q: %w", cfg.Google.CalendarName, err)
	}
	logger.Debug("Using Google calendar", zap.String("id", cal.ID()))
	return cal, nil
}
