package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"

	"propsync/internal/app"
	"propsync/pkg/config"
	"propsync/pkg/logger"
	"propsync/pkg/state"
	"propsync/pkg/state/shutdown"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	// parse config flags
	flags := config.ParseConfigFlags()
	if !flags.Set["data"] {
		if root := state.ArtifactRoot(); root != "" {
			flags.Data = filepath.Join(root, "data")
		}
	}

	// parse config file
	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		shutdown.Abort("failed to load config file", err, flags.Data)
	}

	// parse config env variables
	envCfg, envRes := config.ParseConfigEnvs()

	// load effective config
	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		shutdown.Abort("failed to build effective config", err, flags.Data)
	}

	// validate config and apply defaults
	if err := config.ValidateConfig(eff); err != nil {
		shutdown.Abort("invalid configuration", err, eff.DataDir)
	}

	// initialize logger after config is fully loaded
	logger.InitWithLevel(eff.Config.Logging.Level)
	defer logger.Sync()

	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "data_dir", eff.DataDir)
	logger.Info("config_validation_passed")

	// install the process-wide config for debug introspection
	config.Set(eff.Config)

	// set to maximum cpu's available
	numCPU := runtime.NumCPU()
	runtime.GOMAXPROCS(numCPU)
	logger.Info("system_logical_cores", "logical_cores", numCPU)

	// init data folders and ensure the filesystem layout
	if err := state.Init(eff.DataDir); err != nil {
		logger.Error("state_dirs_setup_failed", "error", err)
		fmt.Fprintf(os.Stderr, "state_dirs_setup_failed: %v\n", err)
		shutdown.Abort(fmt.Sprintf("failed to ensure state directories under %s", eff.DataDir), err, eff.DataDir)
	}

	// initialize app
	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize app", err, eff.DataDir)
	}

	// set up context and signal handling for graceful shutdown
	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	// run the app
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("app run failed", err, eff.DataDir)
	}

	// shutdown the app with a bounded timeout so teardown cannot hang forever
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	_ = a.Shutdown(shutdownCtx)
}
