package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/mverhagen/memberhub/internal/api"
	"github.com/mverhagen/memberhub/internal/app"
	"github.com/mverhagen/memberhub/internal/credential"
	"github.com/mverhagen/memberhub/internal/logger"
	"github.com/mverhagen/memberhub/internal/mailwatch"
	"github.com/mverhagen/memberhub/internal/model"
	"github.com/mverhagen/memberhub/internal/notify"
	"github.com/mverhagen/memberhub/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "memberhub:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := model.LoadConfig(model.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := logger.Init(cfg.LogFile); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Logger()

	localStore, err := store.NewSQLiteStore(filepath.Join(model.DefaultDataDir(), "memberhub.db"))
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer localStore.Close()

	token, err := credential.Token()
	if err != nil {
		log.Warn("no stored API token, starting anonymous", zap.Error(err))
	}
	client := api.NewClient(cfg.Server.BaseURL, token)

	if cfg.Server.DeviceToken != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := client.RegisterDevice(ctx, cfg.Server.DeviceToken); err != nil {
				log.Warn("device registration failed", zap.Error(err))
			}
		}()
	}

	queue := notify.NewQueue()

	if cfg.Mail.Enabled {
		password, err := credential.Get("imap-password")
		if err != nil {
			log.Warn("mail watching enabled but no IMAP password stored", zap.Error(err))
		} else {
			watcher := mailwatch.New(cfg.Mail, password, queue, log)
			watcher.Start()
			defer watcher.Stop()
		}
	}

	root := app.New(cfg, localStore, client, queue, log, func() {
		if err := credential.DeleteToken(); err != nil {
			log.Warn("removing stored token failed", zap.Error(err))
		}
	})

	program := tea.NewProgram(root, tea.WithAltScreen(), tea.WithReportFocus())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}
