package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/crdt"
	"github.com/cuemby/burrow/pkg/crypto"
	"github.com/cuemby/burrow/pkg/db"
	"github.com/cuemby/burrow/pkg/enclog"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/oplog"
	"github.com/cuemby/burrow/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - encrypted replicated key-value store",
	Long: `Burrow persists structured data in an untrusted shared medium
(typically a hosted git repository used as a dumb object store). Every byte
that leaves this machine is encrypted under keys derived from your
passphrase; replicas holding the same passphrase reconcile through any
shared remote without an online coordinator.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", defaultDataDir(), "Directory holding the local store and log")
	rootCmd.PersistentFlags().String("passphrase", "", "Passphrase (or set BURROW_PASSPHRASE)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(initCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".burrow"
	}
	return filepath.Join(home, ".burrow")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new burrow replica",
	Long: `Initialize a new replica: generate this device's actor identity and
KDF salt, and create the bare git repository backing the operation log.
The local store is created on first use by the other commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")

		if _, err := os.Stat(filepath.Join(dataDir, "actor")); err == nil {
			return fmt.Errorf("replica already initialized in %s", dataDir)
		}
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		actor := crdt.NewActor()
		if err := os.WriteFile(filepath.Join(dataDir, "actor"), []byte(actor.String()), 0600); err != nil {
			return fmt.Errorf("write actor: %w", err)
		}

		kdf, err := crypto.NewKDF()
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dataDir, "salt"), []byte(hex.EncodeToString(kdf.Salt[:])), 0600); err != nil {
			return fmt.Errorf("write salt: %w", err)
		}

		if _, err := oplog.InitGitLog[*enclog.EncryptedOp](actor, filepath.Join(dataDir, "log")); err != nil {
			return err
		}

		fmt.Printf("Initialized replica %s in %s\n", actor, dataDir)
		return nil
	},
}

// openDB assembles the full stack for a previously initialized replica:
// bolt store, git-backed encrypted log, DB facade.
func openDB(cmd *cobra.Command) (*db.DB, func(), error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	passphrase, _ := cmd.Flags().GetString("passphrase")
	if passphrase == "" {
		passphrase = os.Getenv("BURROW_PASSPHRASE")
	}
	if passphrase == "" {
		return nil, nil, fmt.Errorf("no passphrase given (use --passphrase or BURROW_PASSPHRASE)")
	}

	actorHex, err := os.ReadFile(filepath.Join(dataDir, "actor"))
	if err != nil {
		return nil, nil, fmt.Errorf("read actor (did you run burrow init?): %w", err)
	}
	actorBytes, err := hex.DecodeString(string(actorHex))
	if err != nil {
		return nil, nil, fmt.Errorf("decode actor: %w", err)
	}
	actor, err := crdt.ActorFromBytes(actorBytes)
	if err != nil {
		return nil, nil, err
	}

	saltHex, err := os.ReadFile(filepath.Join(dataDir, "salt"))
	if err != nil {
		return nil, nil, fmt.Errorf("read salt: %w", err)
	}
	saltBytes, err := hex.DecodeString(string(saltHex))
	if err != nil {
		return nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	kdf := crypto.KDF{Iters: crypto.DefaultIterations}
	copy(kdf.Salt[:], saltBytes)

	root, err := kdf.DeriveRoot([]byte(passphrase))
	if err != nil {
		return nil, nil, err
	}

	gitLog, err := oplog.OpenGitLog[*enclog.EncryptedOp](actor, filepath.Join(dataDir, "log"))
	if err != nil {
		return nil, nil, err
	}
	encLog, err := enclog.New(actor, root, gitLog)
	if err != nil {
		return nil, nil, err
	}

	s, err := store.NewBoltStore(dataDir)
	if err != nil {
		return nil, nil, err
	}

	d, err := db.New(actor, encLog, s)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return d, func() { s.Close() }, nil
}
