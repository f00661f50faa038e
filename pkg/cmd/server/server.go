// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server wires the `eval-jobs` root command: flag parsing,
// config-file merging, logging bootstrap, and handing off to
// internal/supervisor for the traversal itself.
package server

import (
	"os"
	"strings"

	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/pingcap/eval-jobs/internal/config"
	"github.com/pingcap/eval-jobs/internal/evalapi"
	"github.com/pingcap/eval-jobs/internal/supervisor"
	"github.com/pingcap/eval-jobs/internal/worker"
	cmdcontext "github.com/pingcap/eval-jobs/pkg/cmd/context"
	"github.com/pingcap/eval-jobs/pkg/cmd/util"
	cerror "github.com/pingcap/eval-jobs/pkg/errors"
	"github.com/pingcap/eval-jobs/pkg/flags"
	"github.com/pingcap/eval-jobs/pkg/logutil"
	pkgutil "github.com/pingcap/eval-jobs/pkg/util"
	"github.com/pingcap/eval-jobs/pkg/version"
)

// envPrefix namespaces every flag's environment variable fallback, e.g.
// --workers can also be set as EVAL_JOBS_WORKERS.
const envPrefix = "EVAL_JOBS"

// fileConfig is the subset of config.Config that can also be set from a
// TOML file passed via --config, mirroring the teacher's ServerConfig
// file/flag merge pattern.
type fileConfig struct {
	Workers          int    `toml:"workers"`
	MaxMemorySizeMiB uint64 `toml:"max-memory-size"`
	GCRootsDir       string `toml:"gc-roots-dir"`
	Impure           bool   `toml:"impure"`
	ForceRecurse     bool   `toml:"force-recurse"`
	Meta             bool   `toml:"meta"`
	CheckCacheStatus bool   `toml:"check-cache-status"`
	ShowInputDrvs    bool   `toml:"show-input-drvs"`
	ShowTrace        bool   `toml:"show-trace"`
	Constituents     bool   `toml:"constituents"`
	NoInstantiate    bool   `toml:"no-instantiate"`
	LogFile          string `toml:"log-file"`
	LogLevel         string `toml:"log-level"`
}

func defaultFileConfig() *fileConfig {
	return &fileConfig{
		Workers:          config.DefaultWorkers,
		MaxMemorySizeMiB: config.DefaultMaxMemorySizeMiB,
		LogLevel:         "info",
	}
}

// options defines flags for the root `eval-jobs` command.
type options struct {
	configFilePath string
	conf           *fileConfig

	expr                  string
	file                  bool
	apply                 string
	selectExpr            string
	referenceLockFilePath string
	overrideInputs        []string
}

func newOptions() *options {
	return &options{conf: defaultFileConfig()}
}

func (o *options) addFlags(cmd *cobra.Command) {
	d := defaultFileConfig()
	cmd.Flags().IntVar(&o.conf.Workers, "workers", d.Workers, "number of worker subprocesses evaluating in parallel")
	cmd.Flags().Uint64Var(&o.conf.MaxMemorySizeMiB, "max-memory-size", d.MaxMemorySizeMiB, "per-worker resident set size cap, in mebibytes, before it restarts itself")
	cmd.Flags().StringVar(&o.conf.GCRootsDir, "gc-roots-dir", d.GCRootsDir, "directory to register GC roots for discovered derivations into")
	cmd.Flags().BoolVar(&o.conf.Impure, "impure", d.Impure, "allow impure expressions (building against unlocked inputs, access to NIX_PATH, etc.)")
	cmd.Flags().BoolVar(&o.conf.ForceRecurse, "force-recurse", d.ForceRecurse, "recurse into every attribute set regardless of its recurseForDerivations flag")
	cmd.Flags().BoolVar(&o.conf.Meta, "meta", d.Meta, "include each derivation's meta attributes in its record")
	cmd.Flags().BoolVar(&o.conf.CheckCacheStatus, "check-cache-status", d.CheckCacheStatus, "query the store for each derivation's cache status")
	cmd.Flags().BoolVar(&o.conf.ShowInputDrvs, "show-input-drvs", d.ShowInputDrvs, "include each derivation's input derivations in its record")
	cmd.Flags().BoolVar(&o.conf.ShowTrace, "show-trace", d.ShowTrace, "include evaluator stack traces in evaluation error messages")
	cmd.Flags().BoolVar(&o.conf.Constituents, "constituents", d.Constituents, "resolve namedConstituents into concrete derivation dependency edges after the traversal")
	cmd.Flags().BoolVar(&o.conf.NoInstantiate, "no-instantiate", d.NoInstantiate, "do not instantiate derivations, only evaluate them (incompatible with --check-cache-status)")
	cmd.Flags().StringVar(&o.conf.LogFile, "log-file", d.LogFile, "log file path")
	cmd.Flags().StringVar(&o.conf.LogLevel, "log-level", d.LogLevel, "log level (debug|info|warn|error)")

	cmd.Flags().StringVarP(&o.expr, "expr", "E", "", "evaluate this expression instead of reading a flake or file")
	cmd.Flags().BoolVarP(&o.file, "file", "f", false, "treat the positional argument as a Nix file path instead of a flake reference")
	cmd.Flags().StringVar(&o.apply, "apply", "", "apply this function to every derivation found before materializing its record")
	cmd.Flags().StringVar(&o.selectExpr, "select", "", "apply this function to the whole root value before walking it")
	cmd.Flags().StringVar(&o.referenceLockFilePath, "reference-lock-file", "", "flake.lock to use instead of the flake's own, without writing it back")
	cmd.Flags().StringArrayVar(&o.overrideInputs, "override-input", nil, "override a flake input, as NAME=PATH; may be given more than once")

	cmd.Flags().StringVar(&o.configFilePath, "config", "", "path of a TOML configuration file")
}

func (o *options) loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	if err := flags.SetPFlagsFromEnv(envPrefix, cmd.Flags()); err != nil {
		return nil, err
	}

	if o.configFilePath != "" {
		flagConf := o.conf
		o.conf = defaultFileConfig()
		if err := util.StrictDecodeFile(o.configFilePath, "eval-jobs", o.conf); err != nil {
			return nil, err
		}
		// A flag explicitly set on the command line still wins over
		// whatever the file says, exactly like the teacher's ServerConfig
		// merge in pkg/cmd/server.
		cmd.Flags().Visit(func(flag *pflag.Flag) {
			switch flag.Name {
			case "workers":
				o.conf.Workers = flagConf.Workers
			case "max-memory-size":
				o.conf.MaxMemorySizeMiB = flagConf.MaxMemorySizeMiB
			case "gc-roots-dir":
				o.conf.GCRootsDir = flagConf.GCRootsDir
			case "impure":
				o.conf.Impure = flagConf.Impure
			case "force-recurse":
				o.conf.ForceRecurse = flagConf.ForceRecurse
			case "meta":
				o.conf.Meta = flagConf.Meta
			case "check-cache-status":
				o.conf.CheckCacheStatus = flagConf.CheckCacheStatus
			case "show-input-drvs":
				o.conf.ShowInputDrvs = flagConf.ShowInputDrvs
			case "show-trace":
				o.conf.ShowTrace = flagConf.ShowTrace
			case "constituents":
				o.conf.Constituents = flagConf.Constituents
			case "no-instantiate":
				o.conf.NoInstantiate = flagConf.NoInstantiate
			case "log-file":
				o.conf.LogFile = flagConf.LogFile
			case "log-level":
				o.conf.LogLevel = flagConf.LogLevel
			}
		})
	}

	overrides, err := parseOverrideInputs(o.overrideInputs)
	if err != nil {
		return nil, err
	}

	var source config.RootSource
	if len(args) > 0 {
		source.Arg = args[0]
	}
	source.Flake = !o.file && o.expr == ""
	source.Expr = o.expr

	cfg := &config.Config{
		Workers:               o.conf.Workers,
		MaxMemorySizeMiB:      o.conf.MaxMemorySizeMiB,
		GCRootsDir:            o.conf.GCRootsDir,
		Source:                source,
		Impure:                o.conf.Impure,
		ForceRecurse:          o.conf.ForceRecurse,
		Meta:                  o.conf.Meta,
		CheckCacheStatus:      o.conf.CheckCacheStatus,
		ShowInputDrvs:         o.conf.ShowInputDrvs,
		ShowTrace:             o.conf.ShowTrace,
		Constituents:          o.conf.Constituents,
		Apply:                 o.apply,
		Select:                o.selectExpr,
		NoInstantiate:         o.conf.NoInstantiate,
		ReferenceLockFilePath: o.referenceLockFilePath,
		OverrideInputs:        overrides,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseOverrideInputs(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, entry := range raw {
		name, path, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, cerror.ErrIncompatibleFlags.GenWithStackByArgs("--override-input expects NAME=PATH, got " + entry)
		}
		out[name] = path
	}
	return out, nil
}

func (o *options) run(cmd *cobra.Command, args []string) error {
	cfg, err := o.loadConfig(cmd, args)
	if err != nil {
		return err
	}

	cancel := util.InitCmd(cmd, &logutil.Config{
		File:  o.conf.LogFile,
		Level: o.conf.LogLevel,
	})
	defer cancel()
	util.LogHTTPProxies()
	version.LogVersionInfo()

	ctx := cmdcontext.GetDefaultContext()

	pkgutil.WarnIfWorkerBudgetExceedsHost(cfg.Workers, cfg.MaxMemorySizeMiB)

	// The content-addressed store is one of the out-of-scope collaborators
	// named in SPEC_FULL.md §4: this binary's job is the traversal and
	// protocol, not a Nix store implementation, so production wiring for
	// evalapi.Store has no home here. Only --constituents' aggregate pass
	// needs one; without a real implementation to plug in, that pass is
	// left to evalapi/fake-backed tests until a store binding exists.
	var store evalapi.Store

	sup := &supervisor.Supervisor{
		Cfg:   cfg,
		Store: store,
		Out:   os.Stdout,
		NewSpawner: func(workerID int) supervisor.Spawner {
			return supervisor.RealSpawner(worker.EncodeArgs(cfg))
		},
	}

	if err := sup.Run(ctx); err != nil {
		log.Error("traversal failed", zap.Error(err))
		return err
	}
	return nil
}

// NewCmdServer creates the `eval-jobs` root command.
func NewCmdServer() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "eval-jobs [flags] [flake-ref|file]",
		Short: "Evaluate a Nix expression's derivations in parallel and print one JSON record per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args)
		},
	}
	o.addFlags(command)
	return command
}
