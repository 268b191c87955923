package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/oplog"
)

var syncCmd = &cobra.Command{
	Use:   "sync <url>",
	Short: "Exchange ops with a remote",
	Long: `Pull new ops from the remote, apply them locally, and publish this
replica's branches. The remote only ever sees ciphertext; any git host
works, including ones you do not trust.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remoteName, _ := cmd.Flags().GetString("remote")
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("token")

		d, closeDB, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		var remote *oplog.GitRemote
		if user != "" {
			remote = oplog.NewGitRemoteUserPass(remoteName, args[0], user, pass)
		} else {
			remote = oplog.NewGitRemote(remoteName, args[0])
		}

		logger := log.WithRemote(args[0])
		if err := d.Sync(remote); err != nil {
			return err
		}
		logger.Info().Msg("sync complete")
		return nil
	},
}

func init() {
	syncCmd.Flags().String("remote", "origin", "Name to register the remote under")
	syncCmd.Flags().String("user", "", "Username for HTTP basic auth")
	syncCmd.Flags().String("token", "", "Password or personal access token")

	rootCmd.AddCommand(syncCmd)
}
