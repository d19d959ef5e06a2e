// Command iroha runs a single Iroha peer: the world-state view, the
// transaction queue, the executor, Sumeragi consensus, block-sync and the
// Torii gateway, wired together over one libp2p message bus.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"iroha/core"
	"iroha/gateway"
	"iroha/pkg/config"
)

func main() {
	root := &cobra.Command{Use: "iroha"}
	root.AddCommand(runCmd())
	root.AddCommand(keygenCmd())
	root.AddCommand(schemaCmd())
	root.AddCommand(scaledumpCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var (
		env           string
		keyFile       string
		submitGenesis bool
		genesisPath   string
		trustedPeers  string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "start a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			if submitGenesis {
				cfg.Chain.SubmitGenesis = true
			}
			if genesisPath != "" {
				cfg.Chain.GenesisFile = genesisPath
			}
			if trustedPeers != "" {
				peers, err := loadTrustedPeers(trustedPeers)
				if err != nil {
					return fmt.Errorf("load trusted peers: %w", err)
				}
				cfg.Network.BootstrapPeers = peers
			}
			return runPeer(cfg, keyFile)
		},
	}
	cmd.Flags().StringVar(&env, "config", "", "environment overlay to merge over default.yaml")
	cmd.Flags().StringVar(&keyFile, "key", "node.key", "path to this peer's Ed25519 seed file")
	cmd.Flags().BoolVar(&submitGenesis, "submit-genesis", false, "apply the genesis block on startup instead of syncing it")
	cmd.Flags().StringVar(&genesisPath, "genesis", "", "path to the genesis block, overriding chain.genesis_file")
	cmd.Flags().StringVar(&trustedPeers, "trusted-peers", "", "path to a newline-delimited list of bootstrap multiaddrs")
	return cmd
}

func loadTrustedPeers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var peers []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			peers = append(peers, line)
		}
	}
	return peers, scanner.Err()
}

func runPeer(cfg *config.Config, keyFile string) error {
	logger := logrus.StandardLogger()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	}

	kp, err := loadOrCreateKeyPair(keyFile)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	logger.Infof("peer identity %s", kp.Public)

	wsv := core.NewWorldStateView(logger)

	store, err := core.OpenBlockStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}

	limits := core.Limits{
		Ident:    core.IdentLengthLimits{Min: cfg.Limits.IdentMin, Max: cfg.Limits.IdentMax},
		Metadata: core.MetadataLimits{Capacity: cfg.Limits.MetadataCapacity, MaxEntryBytes: cfg.Limits.MetadataMaxEntryBytes},
	}
	acceptLimits := core.AcceptLimits{
		FutureThreshold:     time.Duration(cfg.Queue.FutureThresholdMS) * time.Millisecond,
		MaxSignatures:       cfg.Queue.MaxSignatures,
		MaxInstructionCount: cfg.Queue.MaxInstructionCount,
		MaxWasmSizeBytes:    cfg.Queue.MaxWasmSizeBytes,
	}

	schema := core.NewPermissionTokenSchema()
	executor := core.NewExecutor(schema, cfg.Executor.FuelLimit, logger)

	authority := core.AccountId{Signatory: kp.Public, Domain: core.DomainId{Name: "genesis"}}
	var genesisRaw *core.RawGenesisBlock
	if cfg.Chain.GenesisFile != "" {
		genesisRaw, err = core.LoadGenesisFile(cfg.Chain.GenesisFile)
		if err != nil {
			return fmt.Errorf("load genesis: %w", err)
		}
	}
	switch {
	case store.Height() > 0:
		if err := core.RestoreFromStore(wsv, store, executor, authority, genesisRaw, limits); err != nil {
			return fmt.Errorf("restore from store: %w", err)
		}
		logger.Infof("restored world state to height %d", wsv.Height())
	case cfg.Chain.SubmitGenesis:
		if genesisRaw == nil {
			return fmt.Errorf("chain.submit_genesis is set but chain.genesis_file is empty")
		}
		if err := core.ApplyGenesis(wsv, store, authority, genesisRaw, limits, time.Now()); err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis applied")
	}

	net, err := core.NewNode(core.NetworkConfig{
		ListenAddr:     cfg.Network.ListenAddr,
		BootstrapPeers: cfg.Network.BootstrapPeers,
		DiscoveryTag:   cfg.Network.DiscoveryTag,
	}, logger)
	if err != nil {
		return fmt.Errorf("start network: %w", err)
	}
	defer net.Close()

	queue := core.NewQueue(core.QueueConfig{
		Capacity:     cfg.Queue.Capacity,
		ChainId:      cfg.Chain.Id,
		AcceptLimits: acceptLimits,
		RatePerSec:   cfg.Queue.RatePerSec,
		RateBurst:    cfg.Queue.RateBurst,
	}, wsv, core.VerifySignature)

	events := core.NewEventBus(0)
	blockSync := core.NewBlockSync(core.BlockSyncConfig{
		SyncBatchSize:  64,
		RequestTimeout: 10 * time.Second,
	}, logger, store, net)

	sumeragi := core.NewSumeragi(core.SumeragiConfig{
		ChainId:           cfg.Chain.Id,
		Self:              kp.Public,
		BlockInterval:     time.Duration(cfg.Sumeragi.BlockIntervalMS) * time.Millisecond,
		ViewTimeout:       time.Duration(cfg.Sumeragi.ViewTimeoutMS) * time.Millisecond,
		MaxTxPerBlock:     cfg.Sumeragi.MaxTxPerBlock,
		AcceptLimits:      acceptLimits,
		InstructionLimits: limits,
	}, logger, wsv, store, queue, executor, net, events, blockSync, kp.SignBytes, core.VerifySignature)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := blockSync.Start(ctx); err != nil {
		return fmt.Errorf("start block sync: %w", err)
	}
	if err := blockSync.Synchronize(ctx, sumeragi.ApplyExternal); err != nil {
		logger.Warnf("initial catch-up: %v", err)
	}
	if err := sumeragi.Start(ctx); err != nil {
		return fmt.Errorf("start consensus: %w", err)
	}

	srv := gateway.New(gateway.Config{BindAddr: cfg.Gateway.BindAddr}, wsv, queue, events, core.NewBlockStream(store, events), logger)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			logger.Errorf("gateway stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func keygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a new Ed25519 peer identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := core.GenerateKeyPair()
			if err != nil {
				return err
			}
			seed := kp.Seed()
			if err := os.WriteFile(out, seed[:], 0600); err != nil {
				return err
			}
			fmt.Printf("public key: %s\nseed written to %s\n", kp.Public, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "node.key", "file to write the generated seed to")
	return cmd
}

// schemaCmd dumps the JSON shape of every wire-visible instruction and
// query box, the data a client SDK needs to construct a Transaction or
// Query without reading this repository's Go types directly.
func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "print the instruction/query/transaction schema as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema := map[string]interface{}{
				"wire_version": core.WireVersion,
				"transaction":  core.Transaction{},
				"block":        core.BlockHeader{},
				"instruction":  core.Instruction{},
				"query":        core.Query{},
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(schema)
		},
	}
}

// scaledumpCmd decodes a versioned wire envelope written to disk (the
// format /transaction and /query accept) and pretty-prints its payload.
func scaledumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scaledump <file>",
		Short: "decode a versioned wire envelope and print its JSON payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var env core.Envelope
			if err := core.DecodeWire(data, &env); err != nil {
				return fmt.Errorf("decode envelope: %w", err)
			}
			var payload interface{}
			if err := core.DecodeWire(env.Payload, &payload); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}
			fmt.Printf("version: %d\n", env.Version)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}
}

func loadOrCreateKeyPair(path string) (core.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err == nil && len(data) == 32 {
		var seed [32]byte
		copy(seed[:], data)
		return core.KeyPairFromSeed(seed), nil
	}
	kp, err := core.GenerateKeyPair()
	if err != nil {
		return core.KeyPair{}, err
	}
	seed := kp.Seed()
	if err := os.WriteFile(path, seed[:], 0600); err != nil {
		return core.KeyPair{}, err
	}
	return kp, nil
}
