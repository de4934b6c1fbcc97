package main

import (
	"os"
	"os/signal"
	"syscall"

	"dacapo/internal/app"
	"dacapo/internal/config"
	"dacapo/internal/store"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}
	applyLogging(logger, cfg)

	// Open the recording store
	st := store.NewStore(cfg.Database.Path)
	defer st.Close()

	session := app.NewApp(cfg, st, logger)
	if err := session.Start(); err != nil {
		logger.WithError(err).Fatal("Error starting session")
	}

	// Pick up anything already dropped into the watch directory
	if err := session.ScanWatchDir(); err != nil {
		logger.WithError(err).Warn("Could not scan watch directory")
	}

	if len(session.Library().Snapshot().Items) == 0 {
		logger.WithField("supported_formats", cfg.Library.SupportedFormats).Warn("Library is empty. Use 'import <path>' to add a recording.")
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Read transport commands until quit or EOF
	done := make(chan struct{})
	loop := newREPL(session, cfg, os.Stdin, os.Stdout)
	go func() {
		loop.Run()
		close(done)
	}()

	select {
	case <-c:
		logger.Info("Received shutdown signal")
	case <-done:
	}

	session.Shutdown()
}

func applyLogging(logger *logrus.Logger, cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
}
