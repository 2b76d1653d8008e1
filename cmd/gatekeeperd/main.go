package main

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/tee-ta-bridge/channel"
	"github.com/ruteri/tee-ta-bridge/cmd/flags"
	"github.com/ruteri/tee-ta-bridge/hal"
	"github.com/ruteri/tee-ta-bridge/httpserver"
	"github.com/ruteri/tee-ta-bridge/interfaces"
	"github.com/ruteri/tee-ta-bridge/storage"
	"github.com/ruteri/tee-ta-bridge/ta"
	"github.com/urfave/cli/v2"
)

var (
	flagFailureDir = &cli.StringFlag{
		Name:  "failure-dir",
		Value: "/var/lib/ta-bridge/gatekeeper",
		Usage: "existing directory holding failure records (never created)",
	}
	flagFailureStore = &cli.StringFlag{
		Name:  "failure-store",
		Usage: "failure store URI (file://, s3://, vault://), overrides --failure-dir",
	}
	flagMaxMessageSize = &cli.IntFlag{
		Name:  "max-message-size",
		Value: 0,
		Usage: "largest request accepted by the TA channel in bytes, 0 for unlimited",
	}
	flagNonsecureSeed = &cli.StringFlag{
		Name:  "nonsecure-seed",
		Usage: "hex-encoded seed (at least 32 bytes) for deterministic keys, random auth key if unset",
	}
	flagPresharedThreshold = &cli.IntFlag{
		Name:  "preshared-threshold",
		Value: 0,
		Usage: "number of Shamir shares needed to reconstruct the preshared key, 0 to use the seed-derived key",
	}
	flagPresharedShares = &cli.StringSliceFlag{
		Name:  "preshared-key-share",
		Usage: "hex or base64 Shamir share of the preshared key, repeatable",
	}
	flagAdminKeysFile = &cli.StringFlag{
		Name:  "admin-keys-file",
		Usage: "JSON file with admin public keys allowed to submit preshared key shares over the admin API",
	}
	flagDisableSharedSecret = &cli.BoolFlag{
		Name:  "disable-shared-secret",
		Usage: "run without the shared secret capability",
	}
	flagServices = &cli.StringSliceFlag{
		Name:  "service",
		Value: cli.NewStringSlice("gatekeeper", "sharedsecret"),
		Usage: "service name to register on the TA channel, repeatable",
	}
)

var gatekeeperFlags = []cli.Flag{
	flagFailureDir,
	flagFailureStore,
	flagMaxMessageSize,
	flagNonsecureSeed,
	flagPresharedThreshold,
	flagPresharedShares,
	flagAdminKeysFile,
	flagDisableSharedSecret,
	flagServices,
}

// serviceConfig is everything needed to assemble the TA service, independent of cli.
type serviceConfig struct {
	FailureDir          string
	FailureStore        string
	MaxMessageSize      int
	NonsecureSeed       string
	PresharedThreshold  int
	PresharedShares     []string
	AdminKeysFile       string
	DisableSharedSecret bool
	Services            []string
}

// service is the assembled TA behind its HTTP handler.
type service struct {
	channel *channel.LocalTA
	handler *httpserver.Handler
	admin   *httpserver.AdminHandler
}

// setup assembles the service. The failure store is checked first so a
// misconfigured deployment fails before any service is registered.
func setup(cfg *serviceConfig, log *slog.Logger, opts ...channel.Option) (*service, error) {
	failures, err := openFailureStore(cfg, log)
	if err != nil {
		return nil, err
	}

	var seed []byte
	if cfg.NonsecureSeed != "" {
		seed, err = hex.DecodeString(cfg.NonsecureSeed)
		if err != nil {
			return nil, fmt.Errorf("invalid nonsecure-seed: %w", err)
		}
	}

	preshared, admin, err := setupPresharedKey(cfg, log)
	if err != nil {
		return nil, err
	}

	nonsecure := hal.NonsecureConfig{
		Seed:                seed,
		DisableSharedSecret: cfg.DisableSharedSecret,
	}
	if preshared != nil {
		nonsecure.Preshared = preshared
	}
	imp, err := hal.BuildNonsecure(nonsecure, failures, log)
	if err != nil {
		return nil, err
	}

	if cfg.MaxMessageSize < 0 {
		return nil, errors.New("max-message-size must not be negative")
	}
	if cfg.MaxMessageSize > 0 {
		opts = append([]channel.Option{channel.WithMaxSize(cfg.MaxMessageSize)}, opts...)
	}
	taChannel := channel.NewLocalTA(ta.Constructor, imp, log, opts...)

	handler := httpserver.NewHandler(taChannel, log)
	if len(cfg.Services) == 0 {
		return nil, errors.New("at least one service name is required")
	}
	for _, name := range cfg.Services {
		if err := handler.RegisterService(name); err != nil {
			return nil, err
		}
	}

	return &service{channel: taChannel, handler: handler, admin: admin}, nil
}

func openFailureStore(cfg *serviceConfig, log *slog.Logger) (interfaces.FailureStore, error) {
	uri := cfg.FailureStore
	if uri == "" {
		if err := storage.CheckDirectory(cfg.FailureDir); err != nil {
			return nil, err
		}
		uri = "file://" + cfg.FailureDir
	}

	location, err := interfaces.NewStorageBackendLocation(uri)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFailureStoreFactory(log).FailureStoreFor(location)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure store: %w", err)
	}
	log.Info("Failure store ready", "location", location.String())
	return store, nil
}

// setupPresharedKey returns a Shamir preshared key when a threshold is
// configured, fed from static shares and, if admin keys are given, the admin API.
func setupPresharedKey(cfg *serviceConfig, log *slog.Logger) (*hal.ShamirPresharedKey, *httpserver.AdminHandler, error) {
	if cfg.PresharedThreshold == 0 {
		if len(cfg.PresharedShares) > 0 || cfg.AdminKeysFile != "" {
			return nil, nil, errors.New("preshared-threshold is required with preshared-key-share or admin-keys-file")
		}
		return nil, nil, nil
	}

	key, err := hal.NewShamirPresharedKey(cfg.PresharedThreshold)
	if err != nil {
		return nil, nil, err
	}
	for i, encoded := range cfg.PresharedShares {
		share, err := decodeShare(encoded)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid preshared-key-share #%d: %w", i+1, err)
		}
		if err := key.SubmitShare(i, share); err != nil {
			return nil, nil, fmt.Errorf("failed to submit preshared-key-share #%d: %w", i+1, err)
		}
	}

	var admin *httpserver.AdminHandler
	if cfg.AdminKeysFile != "" {
		f, err := os.Open(cfg.AdminKeysFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open admin keys file: %w", err)
		}
		defer f.Close()

		adminKeys, err := httpserver.LoadAdminKeys(f)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Admin keys loaded", "count", len(adminKeys))
		admin = httpserver.NewAdminHandler(log, adminKeys, key)
	}

	if !key.IsUnlocked() {
		if admin == nil {
			return nil, nil, fmt.Errorf("%d preshared key shares given, %d needed", len(cfg.PresharedShares), cfg.PresharedThreshold)
		}
		log.Warn("Preshared key is locked until enough shares are submitted", "threshold", cfg.PresharedThreshold)
	}
	return key, admin, nil
}

func decodeShare(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func configFromCLI(cCtx *cli.Context) *serviceConfig {
	return &serviceConfig{
		FailureDir:          cCtx.String(flagFailureDir.Name),
		FailureStore:        cCtx.String(flagFailureStore.Name),
		MaxMessageSize:      cCtx.Int(flagMaxMessageSize.Name),
		NonsecureSeed:       cCtx.String(flagNonsecureSeed.Name),
		PresharedThreshold:  cCtx.Int(flagPresharedThreshold.Name),
		PresharedShares:     cCtx.StringSlice(flagPresharedShares.Name),
		AdminKeysFile:       cCtx.String(flagAdminKeysFile.Name),
		DisableSharedSecret: cCtx.Bool(flagDisableSharedSecret.Name),
		Services:            cCtx.StringSlice(flagServices.Name),
	}
}

func main() {
	app := &cli.App{
		Name:  "gatekeeperd",
		Usage: "Serve a non-secure Gatekeeper TA over a serialized channel",
		Flags: append(append(gatekeeperFlags, flags.ServerFlags...), flags.LogFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			logger.Warn("Insecure Gatekeeper service is starting, do not use outside of development")

			svc, err := setup(configFromCLI(cCtx), logger)
			if err != nil {
				logger.Error("Startup failed", "err", err)
				return err
			}

			server := httpserver.New(flags.ConfigureServer(cCtx, logger), svc.handler, svc.admin)
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop", "services", svc.handler.Services())
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete", "served", svc.channel.Served())
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
