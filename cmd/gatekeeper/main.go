package main

import (
	"fmt"
	"log/slog"
	"os"

	configloader "github.com/foxseedlab/gatekeeper/external/config"
	"github.com/foxseedlab/gatekeeper/external/httpapi"
	"github.com/foxseedlab/gatekeeper/external/hubclient"
	notifyimpl "github.com/foxseedlab/gatekeeper/external/notify"
	repositoryimpl "github.com/foxseedlab/gatekeeper/external/repository"
	tokenimpl "github.com/foxseedlab/gatekeeper/external/token"
	"github.com/foxseedlab/gatekeeper/internal/admission"
	"github.com/foxseedlab/gatekeeper/internal/config"
	"github.com/foxseedlab/gatekeeper/internal/hub"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Waiting room and call admission service.",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	tokenimpl.RegisterDI(injector)
	notifyimpl.RegisterDI(injector)
	hub.RegisterDI(injector)
	hubclient.RegisterDI(injector)
	admission.RegisterDI(injector)
	httpapi.RegisterDI(injector)

	return injector
}
