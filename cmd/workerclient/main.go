package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/urfave/cli.v1"

	"github.com/piplabs/subnet-worker-client/assigner"
	"github.com/piplabs/subnet-worker-client/broadcaster"
	"github.com/piplabs/subnet-worker-client/chain"
	"github.com/piplabs/subnet-worker-client/config"
	"github.com/piplabs/subnet-worker-client/scheduler"
	"github.com/piplabs/subnet-worker-client/store"
	"github.com/piplabs/subnet-worker-client/supervisor"
)

// gitCommit is set via -ldflags at build time, matching the
// cmd/kcn/cmd/ranger convention of stamping a version string in.
var gitCommit = "dev"

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file",
	Value: "./workerclient.toml",
}

var app = cli.NewApp()

func init() {
	app.Name = "workerclient"
	app.Usage = "Subnet worker client: polls, claims, executes and settles ledger-scheduled activities"
	app.Version = gitCommit
	app.Flags = []cli.Flag{configFileFlag}
	app.Action = runDaemon
	app.Commands = []cli.Command{
		versionCommand,
		dumpStoreCommand,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var versionCommand = cli.Command{
	Name:  "version",
	Usage: "Print version information",
	Action: func(ctx *cli.Context) error {
		fmt.Println("workerclient", gitCommit)
		return nil
	},
}

// dumpStoreCommand is the operator inspection tool, grounded on
// original_source/src/bin/kv_list.rs's prefix scan over the durable
// key-value store.
var dumpStoreCommand = cli.Command{
	Name:      "dump-store",
	Usage:     "Print every key/value pair under a prefix in the durable store",
	ArgsUsage: "[prefix]",
	Flags:     []cli.Flag{configFileFlag},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		log := zap.NewNop()
		s, err := openStore(cfg, log)
		if err != nil {
			return err
		}
		defer s.Close()

		prefix := []byte(ctx.Args().First())
		return store.Walk(s, prefix, func(key, value []byte) error {
			fmt.Printf("%s => %s\n", key, value)
			return nil
		})
	},
}

func loadConfig(ctx *cli.Context) (config.Config, error) {
	path := ctx.GlobalString(configFileFlag.Name)
	if path == "" {
		path = ctx.String(configFileFlag.Name)
	}
	return config.Load(path)
}

func openStore(cfg config.Config, log *zap.Logger) (store.Store, error) {
	return store.Open(store.Options{
		Engine:  store.Engine(cfg.Store.Type),
		DataDir: cfg.Store.DataDir,
	}, log)
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.JSON {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}

// runDaemon wires config → store → chain.Client → Poller/Broadcaster/
// Assigner → Supervisor, performs the startup gate before any store
// write or loop start, and maps the outcome to spec.md §6's exit codes.
func runDaemon(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger setup error:", err)
		os.Exit(1)
	}
	defer log.Sync()

	wallet, err := chain.ParseAddress(cfg.Ledger.WalletAddress)
	if err != nil {
		log.Error("invalid ledger.wallet_address", zap.Error(err))
		os.Exit(1)
	}
	priv, err := chain.ParsePrivateKey(cfg.Ledger.WalletPrivateKey)
	if err != nil {
		log.Error("invalid ledger.wallet_private_key", zap.Error(err))
		os.Exit(1)
	}
	taskQueueAddr, err1 := chain.ParseAddress(cfg.Ledger.TaskQueueAddress)
	workflowEngineAddr, err2 := chain.ParseAddress(cfg.Ledger.WorkflowEngineAddress)
	subnetControlPlaneAddr, err3 := chain.ParseAddress(cfg.Ledger.SubnetControlPlaneAddress)
	if err1 != nil || err2 != nil || err3 != nil {
		log.Error("invalid ledger contract address", zap.Errors("errors", []error{err1, err2, err3}))
		os.Exit(1)
	}

	s, err := openStore(cfg, log.With(zap.String("component", "store")))
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer s.Close()

	provider := chain.NewHTTPProvider(cfg.Ledger.RPCURL)
	signer := chain.NewECDSASigner(priv, wallet)
	client := chain.NewClient(provider, signer, s, chain.Contracts{
		TaskQueue:          taskQueueAddr,
		WorkflowEngine:     workflowEngineAddr,
		SubnetControlPlane: subnetControlPlaneAddr,
	}, log.With(zap.String("component", "chain")))

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// dev_mode only short-circuits the Assigner's WEP round trip
	// (spec.md §6); the startup gate itself is unconditional.
	if err := supervisor.Gate(rootCtx, client, cfg.Protocol.ContractMin, cfg.Protocol.ContractMax); err != nil {
		log.Error("startup gate failed", zap.Error(err))
		os.Exit(1)
	}

	poller := scheduler.New(client, s, cfg.Scheduler.QueueName, cfg.Scheduler.PollIntervalDuration(), log.With(zap.String("component", "poller")))

	policy := broadcaster.DefaultPolicy()
	policy.GasBumpPercent = cfg.TxPolicy.GasBumpPercent
	bc := broadcaster.New(client, s, policy, cfg.Scheduler.PollIntervalDuration(), log.With(zap.String("component", "broadcaster")))

	var dialer assigner.Dialer
	if !cfg.DevMode {
		grpcDialer, err := assigner.NewGRPCDialer(rootCtx, cfg.WEP.Endpoint)
		if err != nil {
			log.Error("failed to dial WEP endpoint", zap.Error(err))
			os.Exit(1)
		}
		defer grpcDialer.Close()
		dialer = grpcDialer
	}
	asg := assigner.New(s, dialer, assigner.Config{
		MaxInflight:        cfg.Scheduler.MaxInflight,
		ProtocolMin:        cfg.Protocol.ContractMin,
		ProtocolMax:        cfg.Protocol.ContractMax,
		MaxConcurrencyTag:  cfg.Scheduler.MaxInflight,
		Tags:               []string{"cpu"},
		HeartbeatIntervalS: 10,
		AssignmentTTL:      cfg.Scheduler.PollIntervalDuration() * 20,
		DevMode:            cfg.DevMode,
		TaskKind:           "video.preprocess",
		TaskVersion:        "1.0.0",
	}, log.With(zap.String("component", "assigner")))

	sup := supervisor.New(log, poller, bc, asg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := sup.Run(rootCtx); err != nil {
		log.Error("fatal component error", zap.Error(err))
		os.Exit(2)
	}
	os.Exit(0)
	return nil
}
