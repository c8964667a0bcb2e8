// Package app wires configuration, storage, presence, dispatch and the HTTP
// server into one lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"duochat/internal/retention"
	"duochat/pkg/api/handlers"
	"duochat/pkg/config"
	"duochat/pkg/dispatch"
	"duochat/pkg/models"
	"duochat/pkg/presence"
	"duochat/pkg/realtime"
	"duochat/pkg/state"
	"duochat/pkg/store"
	"duochat/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	registry   *presence.Registry
	dispatcher *dispatch.Dispatcher
	ws         *realtime.Handler

	srv *http.Server
}

// New initializes resources that do not require a running context (store,
// validation rules, runtime keys). Call Run to start the HTTP server and
// block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// runtime keys: backend keys double as user-signature signing keys
	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	initValidation(eff)

	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to prepare state dirs at %s: %w", eff.DBPath, err)
	}
	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	registry := presence.NewRegistry()
	dispatcher := dispatch.New(registry)
	handlers.Init(dispatcher, registry)
	ws := realtime.NewHandler(registry, dispatcher, eff.Config.Limits.SendBuffer)

	a := &App{
		eff:        eff,
		version:    version,
		commit:     commit,
		buildDate:  buildDate,
		registry:   registry,
		dispatcher: dispatcher,
		ws:         ws,
	}
	return a, nil
}

// Run starts the retention scheduler and the HTTP server, blocking until ctx
// is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	retention.SetEffectiveConfig(a.eff)
	stopRetention, err := retention.Start(ctx, a.eff)
	if err != nil {
		return fmt.Errorf("failed to start retention: %w", err)
	}
	defer stopRetention()

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		_ = a.srv.Shutdown(shutdownCtx)
		_ = store.Close()
		return nil
	case err := <-errCh:
		_ = store.Close()
		return err
	}
}

// initValidation builds message validation rules from config.
func initValidation(eff config.EffectiveConfigResult) {
	vr := validation.Rules{
		MaxTextBytes: eff.Config.Limits.MaxMessageBytes.Int64(),
		Kinds:        []string{models.KindText, models.KindImage, models.KindFile},
	}
	if vr.MaxTextBytes <= 0 {
		vr.MaxTextBytes = validation.DefaultMaxTextBytes
	}
	validation.SetRules(vr)
}
