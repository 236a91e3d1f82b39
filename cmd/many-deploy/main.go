package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/systemstart/many-deploy/pkg/api"
	"github.com/systemstart/many-deploy/pkg/client/ethereum"
	"github.com/systemstart/many-deploy/pkg/client/simulated"
	"github.com/systemstart/many-deploy/pkg/logging"
	"github.com/systemstart/many-deploy/pkg/pipeline"
	"github.com/systemstart/many-deploy/pkg/processing"
	"github.com/systemstart/many-deploy/pkg/record"
	"github.com/systemstart/many-deploy/pkg/resource"
)

var version = "dev"

const (
	_ = iota
	exitNoPlanParameter
	exitDotenvError
	exitLoggingSetupFailed
	exitLoadContextFailed
	exitLoadNetworksFailed
	exitLoadPlanFailed
	exitClientSetupFailed
	exitPlanRejected
	exitRunAborted
	exitRecordFailed
	exitMetricsFailed
)

const (
	envPrivateKey = "DEPLOYER_PRIVATE_KEY"
	envRPCURL     = "RPC_URL"
)

var (
	planFile       string
	plansDirectory string
	planPattern    string
	maxDepth       int
	contextFile    string
	networksFile   string
	networkName    string
	rpcURL         string
	artifactsDir   string
	dryRun         bool
	simTokens      = tokenSupplies{}
	recordDest     string
	recordEndpoint string
	recordRegion   string
	metricsFile    string
	confirmTimeout time.Duration
	loggingType    string
	logLevel       string
	showVersion    bool
)

func init() {
	flag.StringVar(
		&planFile,
		"plan",
		"",
		"single plan file to run")
	flag.StringVar(
		&plansDirectory,
		"plans-directory",
		"",
		"directory searched for plan files (batch mode)")
	flag.StringVar(
		&planPattern,
		"pattern",
		api.DefaultPlanPattern,
		"glob selecting plan files below -plans-directory")
	flag.IntVar(
		&maxDepth,
		"max-depth",
		-1,
		"max directory recursion depth (-1 = unlimited, 0 = root only)")
	flag.StringVar(
		&contextFile,
		"context-file",
		"",
		"global context YAML file")
	flag.StringVar(
		&networksFile,
		"networks",
		"",
		"networks YAML file")
	flag.StringVar(
		&networkName,
		"network",
		"",
		"network from -networks to deploy to")
	flag.StringVar(
		&rpcURL,
		"rpc-url",
		"",
		"JSON-RPC endpoint, overrides the network's rpcUrl (env "+envRPCURL+")")
	flag.StringVar(
		&artifactsDir,
		"artifacts",
		"artifacts",
		"directory holding compiled contract artifacts")
	flag.BoolVar(
		&dryRun,
		"dry-run",
		false,
		"run against an in-memory chain instead of a node")
	flag.Var(
		simTokens,
		"sim-token",
		"Kind=supply: contract kind minting supply whole tokens to the signer in -dry-run (repeatable)")
	flag.StringVar(
		&recordDest,
		"record",
		"",
		"write a deployment record to this file or s3://bucket/key (a prefix in batch mode)")
	flag.StringVar(
		&recordEndpoint,
		"record-s3-endpoint",
		"",
		"S3-compatible endpoint for s3:// records")
	flag.StringVar(
		&recordRegion,
		"record-s3-region",
		"",
		"region for s3:// records")
	flag.StringVar(
		&metricsFile,
		"metrics-file",
		"",
		"write prometheus metrics in text format to this file after the run")
	flag.DurationVar(
		&confirmTimeout,
		"confirm-timeout",
		ethereum.DefaultConfirmTimeout,
		"maximum wait for a transaction to be mined")
	flag.StringVar(
		&loggingType,
		"logging-type",
		"tint",
		"logging type: "+strings.Join(logging.Types, ", "))
	flag.StringVar(
		&logLevel,
		"log-level",
		"info",
		"logging level: debug, info, warn, error")
	flag.BoolVar(
		&showVersion,
		"version",
		false,
		"print version and exit")
}

// deployClient is a resource.Client that knows its signing account.
type deployClient interface {
	resource.Client
	Signer() string
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := logging.Initialize(os.Stderr, loggingType, logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitLoggingSetupFailed)
	}

	includeEnv()
	checkPlanParameters()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	network := loadNetwork()
	globalContext := processing.MergeContext(loadGlobalContext(), network.Context)

	client, meta, closeClient := setupClient(ctx, network)
	defer closeClient()

	slog.Info("deploying with account", "address", meta.Signer, "network", meta.Network, "dryRun", meta.DryRun)

	reg := prometheus.NewRegistry()
	opts := []pipeline.Option{pipeline.WithObserver(pipeline.NewLogObserver(logger))}
	if metricsFile != "" {
		m, mErr := pipeline.NewMetrics(reg)
		if mErr != nil {
			slog.Error("failed to register metrics", "error", mErr)
			os.Exit(exitMetricsFailed)
		}
		opts = append(opts, pipeline.WithObserver(m))
	}

	var code int
	if planFile != "" {
		code = runSinglePlan(ctx, client, meta, globalContext, opts)
	} else {
		code = runDiscoveryMode(ctx, client, meta, globalContext, opts)
	}

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			slog.Error("failed to write metrics", "filename", metricsFile, "error", err)
			if code == 0 {
				code = exitMetricsFailed
			}
		}
	}

	if code != 0 {
		closeClient()
		os.Exit(code)
	}
	slog.Info("done")
}

func runSinglePlan(ctx context.Context, client deployClient, meta record.Meta, globalContext map[string]any, opts []pipeline.Option) int {
	plan, err := api.LoadPlan(planFile)
	if err != nil {
		slog.Error("failed to load plan", "filename", planFile, "error", err)
		return exitLoadPlanFailed
	}

	res, err := processing.RunPlan(ctx, plan, globalContext, client, opts...)
	rec := recordFor(plan, res, err, meta)
	code := exitCode(res, err)

	if err != nil {
		slog.Error("plan rejected", "filename", planFile, "error", err)
	} else {
		logAddresses(res)
	}

	if recordDest != "" {
		if wErr := writeRecord(ctx, recordDest, rec); wErr != nil && code == 0 {
			code = exitRecordFailed
		}
	}
	return code
}

func runDiscoveryMode(ctx context.Context, client deployClient, meta record.Meta, globalContext map[string]any, opts []pipeline.Option) int {
	runs, err := processing.RunAll(ctx, plansDirectory, planPattern, maxDepth, globalContext, client, opts...)
	if err != nil && len(runs) == 0 {
		slog.Error("processing failed", "error", err)
		return exitLoadPlanFailed
	}

	code := 0
	for _, run := range runs {
		if c := exitCode(run.Result, run.Err); c != 0 && code == 0 {
			code = c
		}
		if run.Err == nil {
			logAddresses(run.Result)
		}
		if recordDest == "" {
			continue
		}
		dest := batchRecordDest(recordDest, run.Plan)
		if wErr := writeRecord(ctx, dest, recordFor(run.Plan, run.Result, run.Err, meta)); wErr != nil && code == 0 {
			code = exitRecordFailed
		}
	}

	if err != nil {
		slog.Error("processing failed", "error", err)
		if code == 0 {
			code = exitRunAborted
		}
	}
	return code
}

func exitCode(res *pipeline.Result, err error) int {
	switch {
	case err != nil:
		return exitPlanRejected
	case !res.Completed():
		return exitRunAborted
	default:
		return 0
	}
}

func recordFor(plan *api.Plan, res *pipeline.Result, err error, meta record.Meta) record.Record {
	if err != nil {
		return record.FromError(plan.FilePath, err, meta)
	}
	rec := record.FromResult(plan.FilePath, res, meta)
	rec.Describe(plan.Steps)
	return rec
}

func writeRecord(ctx context.Context, dest string, rec record.Record) error {
	w := &record.Writer{S3Config: record.S3Config{
		Endpoint:  recordEndpoint,
		Region:    recordRegion,
		PathStyle: recordEndpoint != "",
	}}
	if err := w.Write(ctx, dest, rec); err != nil {
		slog.Error("failed to write deployment record", "destination", dest, "error", err)
		return err
	}
	slog.Info("deployment record written", "destination", dest, "runId", rec.RunID)
	return nil
}

// batchRecordDest places one record per plan below prefix, named after
// the plan file.
func batchRecordDest(prefix string, plan *api.Plan) string {
	base := filepath.Base(plan.FilePath)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".record.yaml"
	root, err := filepath.Abs(plansDirectory)
	if err != nil {
		root = plansDirectory
	}
	if rel, err := filepath.Rel(root, plan.Dir); err == nil && rel != "." {
		name = filepath.ToSlash(rel) + "/" + name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

func logAddresses(res *pipeline.Result) {
	for _, o := range res.Outcomes {
		if o.Handle != nil {
			slog.Info("deployed", "step", o.Name, "kind", o.Handle.Kind, "address", o.Handle.Address)
		}
	}
}

func setupClient(ctx context.Context, network api.Network) (deployClient, record.Meta, func()) {
	meta := record.Meta{Network: network.Name, ChainID: network.ChainID, DryRun: dryRun}
	key := os.Getenv(envPrivateKey)

	if dryRun {
		var opts []simulated.Option
		if key != "" {
			signer, err := signerAddress(key)
			if err != nil {
				slog.Error("invalid "+envPrivateKey, "error", err)
				os.Exit(exitClientSetupFailed)
			}
			opts = append(opts, simulated.WithSigner(signer))
		}
		for kind, supply := range simTokens {
			opts = append(opts, simulated.WithToken(kind, supply))
		}
		c := simulated.New(opts...)
		meta.Signer = c.Signer()
		return c, meta, func() {}
	}

	if key == "" {
		slog.Error(envPrivateKey + " not set")
		os.Exit(exitClientSetupFailed)
	}

	url := rpcURL
	if url == "" {
		url = network.RPCURL
	}
	if url == "" {
		url = os.Getenv(envRPCURL)
	}
	if url == "" {
		slog.Error("no RPC endpoint: set -rpc-url, -network or " + envRPCURL)
		os.Exit(exitClientSetupFailed)
	}

	c, err := ethereum.Dial(ctx, url, key, ethereum.NewArtifacts(artifactsDir), ethereum.WithConfirmTimeout(confirmTimeout))
	if err != nil {
		slog.Error("failed to connect", "error", err)
		os.Exit(exitClientSetupFailed)
	}
	if network.ChainID != 0 && c.ChainID().Uint64() != network.ChainID {
		slog.Error("chain id mismatch", "network", network.Name, "expected", network.ChainID, "actual", c.ChainID())
		c.Close()
		os.Exit(exitClientSetupFailed)
	}

	meta.ChainID = c.ChainID().Uint64()
	meta.Signer = c.Signer()
	return c, meta, c.Close
}

func signerAddress(hexKey string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

func loadNetwork() api.Network {
	if networksFile == "" {
		if networkName != "" {
			slog.Error("-network requires -networks")
			os.Exit(exitLoadNetworksFailed)
		}
		return api.Network{}
	}

	cfg, err := api.LoadNetworks(networksFile)
	if err != nil {
		slog.Error("failed to load networks file", "filename", networksFile, "error", err)
		os.Exit(exitLoadNetworksFailed)
	}

	n, err := cfg.Lookup(networkName)
	if err != nil {
		slog.Error("unknown network", "network", networkName, "error", err)
		os.Exit(exitLoadNetworksFailed)
	}
	return n
}

func loadGlobalContext() map[string]any {
	if contextFile == "" {
		return nil
	}

	ctx, err := processing.LoadContextFile(contextFile)
	if err != nil {
		slog.Error("failed to load context file", "filename", contextFile, "error", err)
		os.Exit(exitLoadContextFailed)
	}
	return ctx
}

func includeEnv() {
	err := godotenv.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to load .env", "error", err)
			os.Exit(exitDotenvError)
		}
		slog.Debug("no .env file found")
	} else {
		slog.Info("using .env file")
	}
}

func checkPlanParameters() {
	switch {
	case planFile == "" && plansDirectory == "":
		slog.Error("one of -plan or -plans-directory is required")
		os.Exit(exitNoPlanParameter)
	case planFile != "" && plansDirectory != "":
		slog.Error("-plan and -plans-directory are mutually exclusive")
		os.Exit(exitNoPlanParameter)
	}
}
