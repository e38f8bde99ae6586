package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pvolkov/daychain-bot/internal/collab"
	"github.com/pvolkov/daychain-bot/internal/config"
	"github.com/pvolkov/daychain-bot/internal/core"
	"github.com/pvolkov/daychain-bot/internal/scheduler"
	"github.com/pvolkov/daychain-bot/internal/store"
	"github.com/pvolkov/daychain-bot/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting daychain-bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.Duration("assignment_ttl", a.cfg.AssignmentTTL),
		zap.Duration("chain_window", a.cfg.ChainWindow),
	)

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	defer func() { _ = repo.Close() }()
	a.log.Info("sqlite ready")

	// Collaborators: wired only when configured; the core treats nil as
	// "pass" / "skip".
	var validator core.Validator
	if a.cfg.ValidatorURL != "" {
		validator = collab.NewValidator(a.cfg.ValidatorURL, a.log)
	}
	var ledger core.Ledger
	if a.cfg.LedgerURL != "" {
		ledger = collab.NewLedger(a.cfg.LedgerURL, a.log)
	}

	svc := core.NewService(repo, a.log, validator, ledger, a.cfg.AssignmentTTL, a.cfg.ChainWindow)
	svc.SetNotifier(telegram.NewNotifier(a.bot, a.log))

	router := telegram.NewRouter(a.bot, a.log, repo, svc)
	sched := scheduler.New(svc, a.log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	g.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updCh := a.bot.GetUpdatesChan(u)
		for {
			select {
			case <-ctx.Done():
				a.bot.StopReceivingUpdates()
				return nil
			case upd := <-updCh:
				router.HandleUpdate(ctx, upd)
			}
		}
	})

	// Shut the HTTP server down once anything cancels the group.
	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("shutdown signal received")
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shCtx); err != nil {
			a.log.Warn("http server shutdown error", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}
