package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/agorachain/agora/app/services/node/handlers"
	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/genesis"
	"github.com/agorachain/agora/foundation/blockchain/propagate"
	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/agorachain/agora/foundation/blockchain/state"
	"github.com/agorachain/agora/foundation/blockchain/storage/disk"
	"github.com/agorachain/agora/foundation/blockchain/worker"
	"github.com/agorachain/agora/foundation/events"
	"github.com/agorachain/agora/foundation/logger"
	"github.com/agorachain/agora/foundation/nameservice"
	"github.com/ardanlabs/conf/v3"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		Node struct {
			Role            string `conf:"default:proposer,help:proposer or replica"`
			BeneficiaryName string `conf:"default:proposer1"`
			ProposerScheme  string `conf:"default:secp256k1"`
			ProposerPubKey  string `conf:"help:hex public key of the proposer, required on a replica"`
			PeerURL         string `conf:"default:ws://0.0.0.0:9080/v1/node/propagate"`
		}
		State struct {
			GenesisPath    string `conf:"default:zblock/genesis.json"`
			DataDir        string `conf:"default:zblock/data"`
			AccountsFolder string `conf:"default:zblock/accounts/"`
			SelectStrategy string `conf:"default:price"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	fmt.Println(`     _    ____  ___  ____      _       ____ _   _    _    ___ _   _ `)
	fmt.Println(`    / \  / ___|/ _ \|  _ \    / \     / ___| | | |  / \  |_ _| \ | |`)
	fmt.Println(`   / _ \| |  _| | | | |_) |  / _ \   | |   | |_| | / _ \  | ||  \| |`)
	fmt.Println(`  / ___ \ |_| | |_| |  _ <  / ___ \  | |___|  _  |/ ___ \ | || |\  |`)
	fmt.Println(` /_/   \_\____|\___/|_| \_\/_/   \_\  \____|_| |_/_/   \_\___|_| \_|`)
	fmt.Print("\n")

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for account addresses.
	// The names come from the file names in the zblock/accounts folder.
	ns, err := nameservice.New(cfg.State.AccountsFolder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	// Logging the accounts for documentation in the logs.
	for accountID, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "account", accountID)
	}

	// =========================================================================
	// Blockchain Support

	// The genesis file fixes the chain identity, the economics, and the
	// initial balances. Proposer and replicas must load the same file.
	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	// Need to load the private key file for the configured beneficiary so the
	// account can get credited with fees and rewards.
	beneficiaryKey, err := loadKey(cfg.State.AccountsFolder, cfg.Node.BeneficiaryName)
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}

	beneficiaryAddr, err := signature.DeriveAddress(beneficiaryKey.Scheme(), beneficiaryKey.PublicKey())
	if err != nil {
		return fmt.Errorf("unable to derive beneficiary address: %w", err)
	}

	// Every replica verifies block signatures against the proposer identity.
	// The proposer derives it from its own key.
	proposerScheme := signature.Scheme(cfg.Node.ProposerScheme)
	proposerPubKey := []byte{}
	switch cfg.Node.Role {
	case state.RoleProposer:
		proposerScheme = beneficiaryKey.Scheme()
		proposerPubKey = beneficiaryKey.PublicKey()

	case state.RoleReplica:
		if !proposerScheme.IsValid() {
			return fmt.Errorf("unknown proposer scheme %q", cfg.Node.ProposerScheme)
		}
		if cfg.Node.ProposerPubKey == "" {
			return errors.New("replica requires the proposer public key")
		}
		proposerPubKey, err = hexutil.Decode(cfg.Node.ProposerPubKey)
		if err != nil {
			return fmt.Errorf("decoding proposer public key: %w", err)
		}
	}

	// Open the badger backed block store.
	strg, err := disk.New(cfg.State.DataDir)
	if err != nil {
		return fmt.Errorf("unable to open storage: %w", err)
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.SendEvent(s)
	}

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	stateCfg := state.Config{
		Role:           cfg.Node.Role,
		BeneficiaryID:  database.AccountID(beneficiaryAddr),
		ProposerScheme: proposerScheme,
		ProposerPubKey: proposerPubKey,
		Genesis:        gen,
		Storage:        strg,
		SelectStrategy: cfg.State.SelectStrategy,
		EvHandler:      ev,
	}
	if cfg.Node.Role == state.RoleProposer {
		stateCfg.ProposerKey = beneficiaryKey
	}

	st, err := state.New(stateCfg)
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// =========================================================================
	// Propagation Support

	// The proposer serves the propagation channel through a hub the replicas
	// subscribe to. A replica dials the proposer and keeps the connection
	// alive through a circuit breaker.
	var hub *propagate.Hub
	var client *propagate.Client

	switch cfg.Node.Role {
	case state.RoleProposer:
		hub = propagate.NewHub(propagate.HubConfig{
			EvHandler: ev,
			OnTransaction: func(tx database.BlockTx) {
				if err := st.SubmitNodeTransaction(tx); err != nil {
					ev("main: OnTransaction: WARNING: %s", err)
				}
			},
		})
		defer hub.Shutdown()

	case state.RoleReplica:
		client = propagate.NewClient(propagate.ClientConfig{
			PeerURL:   cfg.Node.PeerURL,
			EvHandler: ev,
			OnTransaction: func(tx database.BlockTx) {
				if err := st.SubmitNodeTransaction(tx); err != nil {
					ev("main: OnTransaction: WARNING: %s", err)
				}
			},
		})
	}

	// The worker package implements the different workflows such as block
	// production, block verification, and transaction sharing. The worker
	// will register itself with the state.
	worker.Run(st, hub, client, evts, ev)

	// Start the replica's propagation client after the worker is registered
	// so delivered blocks always have a consumer.
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()
	if client != nil {
		go client.Run(clientCtx)
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		NS:       ns,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		NS:       ns,
		Hub:      hub,
	})

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Stop pulling blocks from the proposer.
		clientCancel()

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// loadKey loads the named private key from the accounts folder. Both key
// schemes are supported; the file extension picks the scheme.
func loadKey(folder string, name string) (signature.Key, error) {
	ecdsaPath := filepath.Join(folder, name+".ecdsa")
	if _, err := os.Stat(ecdsaPath); err == nil {
		privateKey, err := crypto.LoadECDSA(ecdsaPath)
		if err != nil {
			return nil, fmt.Errorf("loading ecdsa key: %w", err)
		}
		return signature.NewSecp256k1Key(privateKey), nil
	}

	edPath := filepath.Join(folder, name+".ed25519")
	data, err := os.ReadFile(edPath)
	if err != nil {
		return nil, fmt.Errorf("no key file found for %q under %s", name, folder)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding ed25519 seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	return signature.NewEd25519Key(ed25519.NewKeyFromSeed(seed)), nil
}