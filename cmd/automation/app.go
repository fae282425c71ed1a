package main

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"portal_automation/internal/autonomy"
	"portal_automation/internal/autonomy/cron"
	"portal_automation/internal/autonomy/cronrunner"
	"portal_automation/internal/autonomy/runlock"
	"portal_automation/internal/gateway"
	"portal_automation/internal/llm"
	"portal_automation/internal/logging"
	"portal_automation/internal/portal"
	"portal_automation/internal/portal/sqlstore"
)

// app holds what every subcommand needs: the resolved config, the logger and
// the state store with its run log.
type app struct {
	cfg      autonomy.Config
	log      *zap.SugaredLogger
	store    portal.Store
	recorder cronrunner.RunRecorder
	runs     func(ctx context.Context, limit int) ([]cron.RunRecord, error)
	closers  []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := autonomy.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logJSON {
		cfg.Log.JSON = true
	}
	if strings.TrimSpace(logLevel) != "" {
		cfg.Log.Level = logLevel
	}
	log, err := logging.New(logging.Options{JSON: cfg.Log.JSON, Level: cfg.Log.Level})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.Store.Driver == "file" {
		a.store = portal.NewFileStore(a.cfg.Store.Path)
	} else {
		dialect, err := sqlstore.ParseDialect(a.cfg.Store.Driver)
		if err != nil {
			return err
		}
		s, err := sqlstore.Open(ctx, dialect, a.cfg.Store.DSN, a.cfg.Store.Name)
		if err != nil {
			return err
		}
		a.store = s
		a.recorder = s
		a.runs = s.RecentRuns
		a.closers = append(a.closers, s.Close)
	}

	// An explicit run log path wins over the database table.
	if path := strings.TrimSpace(a.cfg.RunLogPath); path != "" {
		a.recorder = cronrunner.FileRunLog{Path: path}
		a.runs = func(ctx context.Context, limit int) ([]cron.RunRecord, error) {
			return cron.ReadRunRecords(path, limit)
		}
	}
	a.log.Debugw("state store ready", "driver", a.cfg.Store.Driver)
	return nil
}

func (a *app) deps() (cronrunner.Deps, error) {
	provider, err := llm.ParseProvider(a.cfg.LLM.Provider)
	if err != nil {
		return cronrunner.Deps{}, err
	}
	prompts, err := cronrunner.LoadPrompts(a.cfg.PromptsPath, a.cfg.Organization)
	if err != nil {
		return cronrunner.Deps{}, err
	}
	lock := a.cfg.Lock
	locker, err := runlock.New(lock.Driver, lock.Path, lock.RedisURL, lock.StaleAfter)
	if err != nil {
		return cronrunner.Deps{}, err
	}
	if c, ok := locker.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	deps := cronrunner.Deps{
		Store: a.store,
		Generator: cronrunner.NewClientFactory(cronrunner.ClientSettings{
			Provider:        provider,
			Explicit:        a.cfg.ExplicitLayer(),
			CredentialsPath: a.cfg.CredentialsPath,
			BaseURL:         a.cfg.LLM.BaseURL,
			Timeout:         a.cfg.LLM.Timeout,
		}),
		Prompts:  prompts,
		Locker:   locker,
		Recorder: a.recorder,
		Logger:   a.log,
	}
	if path := strings.TrimSpace(a.cfg.TicketsPath); path != "" {
		deps.Tickets = portal.FileTicketSource{Path: path}
	}
	if a.cfg.Notify.Email.Enabled() {
		notifier, err := gateway.NewEmailNotifier(a.cfg.Notify.Email)
		if err != nil {
			return cronrunner.Deps{}, err
		}
		deps.Notifier = notifier
	}
	return deps, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Warnw("close failed", "error", err)
		}
	}
	a.closers = nil
	if a.log != nil {
		_ = a.log.Sync()
	}
}
