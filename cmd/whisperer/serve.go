package main

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bird_whisperer/internal/bot"
	"bird_whisperer/internal/scheduler"
	"bird_whisperer/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the HTTP trigger and the optional Telegram bot",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = d.store.Close() }()
	log := d.log

	loc, err := time.LoadLocation(d.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", d.cfg.Timezone, err)
	}
	sched, err := scheduler.New(d.app, d.cfg.Schedule, loc, log)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	if d.cfg.TelegramBotToken != "" {
		b, err := bot.New(d.cfg.TelegramBotToken, d.app, d.store, d.cfg, log)
		if err != nil {
			return err
		}
		if d.cfg.ReportChatID != 0 {
			sched.SetReporter(b, d.cfg.ReportChatID)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Run(ctx)
		}()
		log.Info("telegram bot started")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	srv := server.New(d.app, d.cfg.EnableManualTrigger, log)
	err = srv.Run(ctx, d.cfg.HTTPAddr)
	cancel()
	wg.Wait()

	log.Info("stopped")
	return err
}
