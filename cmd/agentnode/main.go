// Command agentnode is the long-lived daemon entrypoint: it wires identity,
// credential storage, admission, reputation, the storage façade, and the
// lifecycle manager together, then blocks on a shutdown signal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/p2p-ai-agents/agentnode/internal/admission"
	"github.com/p2p-ai-agents/agentnode/internal/config"
	"github.com/p2p-ai-agents/agentnode/internal/credstore"
	"github.com/p2p-ai-agents/agentnode/internal/identity"
	"github.com/p2p-ai-agents/agentnode/internal/lifecycle"
	"github.com/p2p-ai-agents/agentnode/internal/network"
	"github.com/p2p-ai-agents/agentnode/internal/reputation"
	"github.com/p2p-ai-agents/agentnode/internal/storage"
)

var (
	configPath string
	dataDir    string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "agentnode",
		Short: "Peer-to-peer agent runtime core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "directory holding identity, state, and storage files")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "emit verbose startup diagnostics")

	root.AddCommand(runCmd(), identityCmd(), versionCmd(), configCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger(level string) *logrus.Entry {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log.WithField("component", "cmd")
}

func openStore(dir string) (credstore.Store, error) {
	return credstore.OpenFileVault(filepath.Join(dir, "vault.json"), []byte(os.Getenv("P2P_VAULT_PASSPHRASE")))
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent node until a shutdown signal is received",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log := setupLogger(cfg.LogLevel)

			if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
				return fmt.Errorf("cmd: create storage path: %w", err)
			}

			store, err := openStore(cfg.StoragePath)
			if err != nil {
				return fmt.Errorf("cmd: open credential store: %w", err)
			}

			id, err := identity.LoadOrGenerate(cfg.StoragePath, store)
			if err != nil {
				return fmt.Errorf("cmd: load or generate identity: %w", err)
			}
			log.WithField("peer_id", id.PeerID()).Info("identity ready")
			defer id.Zeroise()

			repLedger := reputation.NewLedger()
			admitter := admission.NewAdmitter(admission.DefaultConfig(), repLedger)

			localBackend, err := storage.NewLocal(filepath.Join(cfg.StoragePath, "local.json"))
			if err != nil {
				return fmt.Errorf("cmd: open local storage backend: %w", err)
			}

			var connPool *network.ConnPool
			var facade *storage.Facade
			if cfg.RemoteStorageURL != "" {
				connPool = network.NewConnPool(network.NewDialer(10*time.Second, 30*time.Second), 16, 2*time.Minute)
				remoteBackend := storage.NewRemote("remote", cfg.RemoteStorageURL, &http.Client{Transport: connPool.RoundTripper()})
				facade = storage.NewFacade(storage.Policy{Kind: storage.Redundant, List: []string{"local", "remote"}})
				facade.Register(localBackend)
				facade.Register(remoteBackend)
			} else {
				facade = storage.NewFacade(storage.Policy{Kind: storage.AlwaysUse, Name: "local"})
				facade.Register(localBackend)
			}
			facade.Register(storage.NewCache(0))

			manager := lifecycle.NewManager(cfg.StoragePath, id.PeerID(), verbose,
				lifecycle.WithShutdownTimeout(time.Duration(cfg.Shutdown.ShutdownTimeoutSecs)*time.Second),
				lifecycle.WithReadiness(lifecycle.ReadinessConfig{
					FileEnabled: cfg.Readiness.FileEnabled,
					FilePath:    filepath.Join(cfg.StoragePath, cfg.Readiness.FilePath),
					PortEnabled: cfg.Readiness.PortEnabled,
					Port:        cfg.Readiness.Port,
				}),
			)

			var node *network.Node
			manager.Register(lifecycle.Component{
				Name: "network",
				Init: func(ctx context.Context) error {
					n, err := network.NewNode(network.Config{
						ListenAddr:     fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.ListenPort),
						BootstrapPeers: cfg.BootstrapNodes,
						DiscoveryTag:   cfg.DiscoveryTag,
					}, network.NewPeerStore(), admitter)
					if err != nil {
						return err
					}
					node = n
					return nil
				},
				Stop: func(ctx context.Context) error {
					if node == nil {
						return nil
					}
					return node.Close()
				},
			})

			manager.Register(lifecycle.Component{
				Name: "storage",
				Init: func(ctx context.Context) error { return nil },
				Stop: func(ctx context.Context) error {
					if connPool != nil {
						connPool.Close()
					}
					return facade.Shutdown(ctx)
				},
			})

			ctx := context.Background()
			if err := manager.Startup(ctx); err != nil {
				return fmt.Errorf("cmd: startup: %w", err)
			}
			log.Info("agent node running")

			if err := manager.WaitForSignal(ctx); err != nil {
				return fmt.Errorf("cmd: shutdown: %w", err)
			}
			log.Info("agent node stopped cleanly")
			return nil
		},
	}
}

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "identity", Short: "Identity key management"}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate a new identity, failing if one already exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dataDir)
			if err != nil {
				return err
			}
			if _, err := identity.Load(dataDir, store); err == nil {
				return fmt.Errorf("cmd: an identity already exists at %s", dataDir)
			}
			id, err := identity.Generate(store)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			if err := id.Save(dataDir); err != nil {
				return err
			}
			cmd.Println(id.PeerID())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rotate",
		Short: "Rotate the identity keypair in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dataDir)
			if err != nil {
				return err
			}
			id, err := identity.Load(dataDir, store)
			if err != nil {
				return err
			}
			if err := id.Rotate(dataDir); err != nil {
				return err
			}
			cmd.Println(id.PeerID())
			return nil
		},
	})
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config show",
		Short: "Print the fully resolved configuration (file + env + defaults) as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("cmd: marshal config: %w", err)
			}
			cmd.Print(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentnode version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("agentnode dev")
		},
	}
}
