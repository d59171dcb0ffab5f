// Command catalyst-node runs the preconfirming sequencer node: it reads its
// configuration from the environment (optionally overlaid with a TOML file),
// wires the L1/L2 clients and sibling tasks together, and drives the main
// loop until told to stop.
//
// The outer structure is grounded on original_source/node/src/main.rs: an
// outer restart loop reconstructs every long-lived component and re-enters
// the main loop whenever it exits with a critical error, waiting a fixed
// delay before retrying so a persistently failing dependency doesn't spin
// the process.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/catalyst-sequencer/catalyst-node/internal/batchbuilder"
	"github.com/catalyst-sequencer/catalyst-node/internal/batchmanager"
	"github.com/catalyst-sequencer/catalyst-node/internal/chain"
	"github.com/catalyst-sequencer/catalyst-node/internal/chainmonitor"
	"github.com/catalyst-sequencer/catalyst-node/internal/config"
	"github.com/catalyst-sequencer/catalyst-node/internal/driver"
	"github.com/catalyst-sequencer/catalyst-node/internal/forcedinclusion"
	"github.com/catalyst-sequencer/catalyst-node/internal/forkinfo"
	"github.com/catalyst-sequencer/catalyst-node/internal/funds"
	"github.com/catalyst-sequencer/catalyst-node/internal/l1"
	"github.com/catalyst-sequencer/catalyst-node/internal/l2engine"
	catalystmetrics "github.com/catalyst-sequencer/catalyst-node/internal/metrics"
	"github.com/catalyst-sequencer/catalyst-node/internal/node"
	"github.com/catalyst-sequencer/catalyst-node/internal/operator"
	"github.com/catalyst-sequencer/catalyst-node/internal/signer"
	"github.com/catalyst-sequencer/catalyst-node/internal/txerrors"
	"github.com/catalyst-sequencer/catalyst-node/internal/txmonitor"
	"github.com/catalyst-sequencer/catalyst-node/internal/watchdog"
	"github.com/catalyst-sequencer/catalyst-node/internal/whitelist"
)

var configFileFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "TOML file overlaid on top of the environment-derived configuration",
}

var metricsAddrFlag = &cli.StringFlag{
	Name:  "metrics.addr",
	Usage: "address the Prometheus metrics endpoint listens on",
	Value: "127.0.0.1:6060",
}

// waitBeforeRecreatingNode mirrors WAIT_BEFORE_RECREATING_NODE_SECS: the
// delay between a critical-error shutdown and the next attempt to
// reconstruct and re-run the node.
const waitBeforeRecreatingNode = 5 * time.Second

func main() {
	app := &cli.App{
		Name:   "catalyst-node",
		Usage:  "run the Catalyst preconfirming sequencer node",
		Flags:  []cli.Flag{configFileFlag, metricsAddrFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run is the CLI action: it loads configuration once, then repeatedly
// constructs and runs the node until the process itself is asked to stop.
func run(cliCtx *cli.Context) error {
	logger := log.New("component", "main")
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return err
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go waitForSignalAndDrain(sigCh, cfg, logger, cancelRoot)

	for {
		outcome, err := runOnce(rootCtx, cfg, cliCtx.String(metricsAddrFlag.Name))
		if err != nil {
			logger.Error("node iteration failed", "err", err)
		}
		switch outcome {
		case outcomeCloseApp:
			return err
		case outcomeRecreateNode:
			logger.Warn("restarting node after a critical error", "delay", waitBeforeRecreatingNode)
			select {
			case <-rootCtx.Done():
				return nil
			case <-time.After(waitBeforeRecreatingNode):
			}
		}
	}
}

// waitForSignalAndDrain blocks for the first SIGTERM or Ctrl-C, then holds a
// differentiated drain window before cancelling: SIGTERM gets a full L1 slot
// duration (time for an in-flight submission to land), Ctrl-C gets a fixed
// 1-second drain, mirroring wait_for_the_termination's per-signal sleep.
func waitForSignalAndDrain(sigCh <-chan os.Signal, cfg *config.Config, logger log.Logger, cancel context.CancelFunc) {
	sig := <-sigCh
	drain := 1 * time.Second
	if sig == syscall.SIGTERM {
		drain = time.Duration(cfg.L1SlotDurationSec) * time.Second
	}
	logger.Info("shutdown signal received, draining before cancellation", "signal", sig, "drain", drain)
	time.Sleep(drain)
	cancel()
}

// loadConfig reads the environment and applies the optional --config TOML
// overlay on top of it.
func loadConfig(cliCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if file := cliCtx.String(configFileFlag.Name); file != "" {
		if err := config.LoadTOMLOverlay(file, cfg); err != nil {
			return nil, fmt.Errorf("load config overlay %q: %w", file, err)
		}
	}
	return cfg, nil
}

// restartOutcome mirrors the Rust ExecutionStopped enum: whether the whole
// process should exit, or the node should be torn down and rebuilt.
type restartOutcome int

const (
	outcomeCloseApp restartOutcome = iota
	outcomeRecreateNode
)

// runOnce builds every long-lived component fresh and runs the node until
// either the root context is cancelled (process-level shutdown) or the
// node's own cancellation token fires from a critical error (restart).
func runOnce(rootCtx context.Context, cfg *config.Config, metricsAddr string) (restartOutcome, error) {
	logger := log.New("component", "main")

	registry := metrics.DefaultRegistry
	m := catalystmetrics.New(registry)
	cancelToken := watchdog.NewCancellationToken(rootCtx, m.CriticalErrors)
	ctx := cancelToken.Context()

	txSigner, err := signer.New(cfg.Web3SignerL1URL, cfg.PreconferAddress, cfg.CatalystNodeECDSAPrivateKey)
	if err != nil {
		return outcomeCloseApp, fmt.Errorf("construct signer: %w", err)
	}

	ethereumL1, err := l1.New(ctx, l1.Config{
		ExecutionRPCURLs:          cfg.L1RPCURLs,
		ConsensusRPCURL:           cfg.L1BeaconURL,
		BlobIndexerURL:            cfg.BlobIndexerURL,
		MinPriorityFeePerGasWei:   cfg.MinPriorityFeePerGasWei,
		TxFeesIncreasePercentage:  cfg.TxFeesIncreasePercentage,
		SlotDurationSec:           cfg.L1SlotDurationSec,
		SlotsPerEpoch:             cfg.L1SlotsPerEpoch,
		PreconfHeartbeatMS:        cfg.PreconfHeartbeatMS,
		MaxAttemptsToSendTx:       cfg.MaxAttemptsToSendTx,
		MaxAttemptsToWaitTx:       cfg.MaxAttemptsToWaitTx,
		DelayBetweenTxAttemptsSec: cfg.DelayBetweenTxAttemptsSec,
		PreconferAddress:          &cfg.PreconferAddress,
		ExtraGasPercentage:        cfg.ExtraGasPercentage,
	})
	if err != nil {
		return outcomeCloseApp, fmt.Errorf("construct l1: %w", err)
	}

	gethClient, err := ethclient.DialContext(ctx, cfg.TaikoGethRPCURL)
	if err != nil {
		return outcomeCloseApp, fmt.Errorf("dial taiko-geth %q: %w", cfg.TaikoGethRPCURL, err)
	}

	jwtSecret, err := chain.LoadJWTSecret(cfg.JWTSecretFilePath)
	if err != nil {
		return outcomeCloseApp, fmt.Errorf("load jwt secret: %w", err)
	}

	engine, err := l2engine.New(ctx, l2engine.Config{
		AuthURL:           cfg.TaikoGethAuthRPCURL,
		RPCTimeout:        cfg.RPCL2ExecutionLayerTimeout,
		JWTSecret:         jwtSecret,
		MaxBytesPerTxList: cfg.MaxBytesPerTxList,
		ThrottlingFactor:  cfg.ThrottlingFactor,
		MinBytesPerTxList: cfg.MinBytesPerTxList,
		Coinbase:          cfg.PreconferAddress,
	})
	if err != nil {
		return outcomeCloseApp, fmt.Errorf("construct l2 engine: %w", err)
	}

	drv := driver.New(driver.Config{
		DriverURL:          cfg.TaikoDriverURL,
		PreconfCallTimeout: cfg.RPCDriverPreconfTimeout,
		StatusCallTimeout:  cfg.RPCDriverStatusTimeout,
		JWTSecret:          jwtSecret,
		CallTimeout:        cfg.RPCDriverPreconfTimeout,
	})

	forkInfo, err := forkinfo.New(forkinfo.Config{
		PacayaTimestampSec:         cfg.PacayaTimestampSec,
		ShastaTimestampSec:         cfg.ShastaTimestampSec,
		PermissionlessTimestampSec: cfg.PermissionlessTimestampSec,
		TransitionPeriod:           time.Duration(cfg.ForkSwitchTransitionPeriodSec) * time.Second,
	}, uint64(time.Now().Unix()))
	if err != nil {
		return outcomeCloseApp, fmt.Errorf("compute fork info: %w", err)
	}

	l2Chain := chain.NewL2(gethClient, drv, cfg.TaikoAnchorAddress, cfg.PreconferAddress, cfg.BlockMaxGasLimit)
	preconfRouter := chain.NewPreconfRouter(ethereumL1.ExecutionLayer.Client, cfg.PreconfRouterAddress, cfg.TaikoInboxAddress, cfg.PreconferAddress)
	forcedInclusionQueue := chain.NewForcedInclusionQueue(ethereumL1.ExecutionLayer.Client, cfg.ForcedInclusionQueueAddress)
	blobFetcher := chain.NewBlobFetcher(ethereumL1.BlobIndexer)
	forcedInclusionReader, err := forcedinclusion.New(ctx, forcedInclusionQueue, blobFetcher, chain.ManifestDecoder{})
	if err != nil {
		return outcomeCloseApp, fmt.Errorf("construct forced inclusion reader: %w", err)
	}

	txErrCh := make(chan txerrors.TransactionError, 1)
	monitor := txmonitor.New(txmonitor.Config{
		MaxAttemptsToSendTx:       cfg.MaxAttemptsToSendTx,
		MaxAttemptsToWaitTx:       cfg.MaxAttemptsToWaitTx,
		DelayBetweenTxAttemptsSec: cfg.DelayBetweenTxAttemptsSec,
		TxFeesIncreasePercentage:  cfg.TxFeesIncreasePercentage,
	}, ethereumL1.ExecutionLayer.Client, txErrCh)

	submitter := chain.NewSubmitter(ethereumL1.ExecutionLayer, txSigner, cfg.TaikoInboxAddress, monitor)

	builderCore := batchbuilder.New[*batchbuilder.Proposal, struct{}](batchbuilder.Config{
		MaxBytesSizeOfBatch:          cfg.MaxBytesSizeOfBatch,
		MaxBlocksPerBatch:            cfg.MaxBlocksPerBatch,
		L1SlotDurationSec:            cfg.L1SlotDurationSec,
		MaxTimeShiftBetweenBlocksSec: cfg.MaxTimeShiftBetweenBlocksSec,
		MaxAnchorHeightOffset:        cfg.MaxAnchorHeightOffsetReduction,
		PreconfMinTxs:                cfg.PreconfMinTxs,
		PreconfMaxSkippedL2Slots:     cfg.PreconfMaxSkippedL2Slots,
	}, ethereumL1.SlotClock)

	manager := batchmanager.New(builderCore, l2Chain, ethereumL1.ExecutionLayer, forcedInclusionReader, submitter, l2Chain, chain.AnchorDecoder{}, batchmanager.Config{
		L1HeightLag:     cfg.L1HeightLag,
		DefaultCoinbase: cfg.PreconferAddress,
	})

	op := operator.New(preconfRouter, ethereumL1.SlotClock, drv, forkInfo, cancelToken, operator.Config{
		HandoverWindowSlotsDefault:           cfg.HandoverWindowSlots,
		HandoverStartBufferMS:                cfg.HandoverStartBufferMS,
		SimulateNotSubmittingAtTheEndOfEpoch: cfg.SimulateNotSubmittingAtTheEndOfEpoch,
	})

	wd := watchdog.New(cancelToken, cfg.MaxAttemptsToWaitTx)

	chainMonitor := chainmonitor.New()

	loop := node.New(node.Config{
		TickInterval:          time.Duration(cfg.PreconfHeartbeatMS) * time.Millisecond,
		BlockMaxGasLimit:      cfg.BlockMaxGasLimit,
		SubmitOnlyFullBatches: false,
		AllowForcedInclusion:  cfg.ProposeForcedInclusion,
		VerifierExpirySlots:   cfg.HandoverWindowSlots,
		BuilderConfig: batchbuilder.Config{
			MaxBytesSizeOfBatch:          cfg.MaxBytesSizeOfBatch,
			MaxBlocksPerBatch:            cfg.MaxBlocksPerBatch,
			L1SlotDurationSec:            cfg.L1SlotDurationSec,
			MaxTimeShiftBetweenBlocksSec: cfg.MaxTimeShiftBetweenBlocksSec,
			MaxAnchorHeightOffset:        cfg.MaxAnchorHeightOffsetReduction,
			PreconfMinTxs:                cfg.PreconfMinTxs,
			PreconfMaxSkippedL2Slots:     cfg.PreconfMaxSkippedL2Slots,
		},
	}, op, manager, engine, ethereumL1.SlotClock, l2Chain, preconfRouter, monitor, wd, cancelToken, m, txErrCh, chainMonitor)

	whitelistProvider := chain.NewWhitelist(ethereumL1.ExecutionLayer.Client, cfg.PreconfWhitelistAddress, cfg.PreconferAddress)
	whitelistMonitor := whitelist.New(whitelistProvider, m, time.Duration(cfg.WhitelistMonitorIntervalSec)*time.Second)

	l2Balances := chain.NewL2Balances(gethClient)
	var bridger funds.Bridger = funds.NoopBridger{}
	fundsController := funds.New(funds.Config{
		PreconferAddress:     cfg.PreconferAddress,
		BridgingThresholdWei: cfg.ThresholdEthWei,
		AmountToBridgeWei:    cfg.AmountToBridgeFromL2ToL1Wei,
		MonitorInterval:      time.Duration(cfg.FundsMonitorIntervalSec) * time.Second,
	}, l2Balances, bridger)

	l2Headers := make(chan chainmonitor.L2HeaderEvent)
	l1Events := make(chan gethtypes.Log)

	l1LogSub, err := ethereumL1.ExecutionLayer.Client.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{cfg.TaikoInboxAddress, cfg.PreconfRouterAddress, cfg.ForcedInclusionQueueAddress},
	}, l1Events)
	if err != nil {
		return outcomeCloseApp, fmt.Errorf("subscribe to l1 logs: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return loop.Run(groupCtx) })
	group.Go(func() error { return whitelistMonitor.Run(groupCtx) })
	group.Go(func() error { return fundsController.Run(groupCtx) })
	group.Go(func() error { return pumpL2Headers(groupCtx, gethClient, l2Headers) })
	group.Go(func() error {
		return chainMonitor.Run(groupCtx, l2Headers, l1Events, func(gethtypes.Log) {})
	})
	group.Go(func() error { return catalystmetrics.Serve(metricsAddr, registry) })

	waitErr := group.Wait()

	l1LogSub.Unsubscribe()
	gethClient.Close()
	ethereumL1.ExecutionLayer.Client.Close()

	return classifyShutdown(rootCtx, cancelToken, waitErr)
}

// pumpL2Headers subscribes to new L2 heads and republishes them on out as
// chainmonitor.L2HeaderEvent, closing out when ctx is cancelled.
func pumpL2Headers(ctx context.Context, client *ethclient.Client, out chan<- chainmonitor.L2HeaderEvent) error {
	defer close(out)
	headers := make(chan *gethtypes.Header)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return fmt.Errorf("subscribe new head: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("l2 header subscription: %w", err)
		case header := <-headers:
			out <- chainmonitor.L2HeaderEvent{
				Number:     header.Number.Uint64(),
				Hash:       header.Hash(),
				ParentHash: header.ParentHash,
			}
		}
	}
}

// classifyShutdown mirrors wait_for_the_termination's three-way race: a
// root-context cancellation (SIGTERM/SIGINT) always closes the app; an
// internally triggered cancellation (critical error) asks for a restart.
func classifyShutdown(rootCtx context.Context, cancelToken *watchdog.CancellationToken, waitErr error) (restartOutcome, error) {
	if rootCtx.Err() != nil {
		return outcomeCloseApp, nil
	}
	if cancelToken.IsCancelled() {
		return outcomeRecreateNode, waitErr
	}
	if errors.Is(waitErr, context.Canceled) {
		return outcomeCloseApp, nil
	}
	return outcomeRecreateNode, waitErr
}
