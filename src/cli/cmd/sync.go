package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sofmeright/stagehand/src/artifactsync"
	"github.com/sofmeright/stagehand/src/config"
	"github.com/sofmeright/stagehand/src/output"
	"github.com/sofmeright/stagehand/src/runner"
	"github.com/sofmeright/stagehand/src/storage"
)

var (
	syncBase string
	syncACL  string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Compare and transfer TIMESTAMP-marked directories",
	Long: `Move directories between the build host and object storage.

A REMOTE argument is either a full location (gs://bucket/dir, file:///root/dir)
or a path relative to the storage base.`,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status <local-dir> <remote>",
	Short: "Show both markers and whether the directories are in sync",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		engine, remote, err := openSync(args[1])
		if err != nil {
			return err
		}
		local, hasLocal, err := artifactsync.ReadLocalMarker(args[0])
		if err != nil {
			return err
		}
		rem, hasRemote, err := engine.ReadRemoteMarker(ctx, remote)
		if err != nil {
			return err
		}
		inSync, err := engine.AreInSync(ctx, args[0], remote)
		if err != nil {
			return err
		}

		color := output.UseColor()
		sec := output.NewSection(os.Stdout, "Sync status", 0, color)
		sec.Field("local", args[0])
		sec.Field("local marker", markerString(local, hasLocal))
		sec.Field("remote", remote.URL())
		sec.Field("remote marker", markerString(rem, hasRemote))
		status := output.StatusFailed
		if inSync {
			status = output.StatusSucceeded
		}
		sec.Field("in sync", fmt.Sprintf("%t %s", inSync, output.StatusIcon(status, color)))
		sec.Close()
		return nil
	},
}

var syncDownCmd = &cobra.Command{
	Use:   "down <remote> <local-dir>",
	Short: "Download remote into local-dir unless the markers already match",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, remote, err := openSync(args[0])
		if err != nil {
			return err
		}
		copied, err := engine.SyncDown(context.Background(), remote, args[1])
		if err != nil {
			return err
		}
		if copied {
			fmt.Printf("downloaded %s -> %s\n", remote, args[1])
		} else {
			fmt.Printf("%s already in sync with %s\n", args[1], remote)
		}
		return nil
	},
}

var syncUpCmd = &cobra.Command{
	Use:   "up <local-dir> <remote>",
	Short: "Upload local-dir to remote and stamp both sides",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, remote, err := openSync(args[1])
		if err != nil {
			return err
		}
		stamp, err := engine.SyncUp(context.Background(), args[0], remote, uploadACL())
		if err != nil {
			return err
		}
		fmt.Printf("uploaded %s -> %s (TIMESTAMP %s)\n", args[0], remote, stamp)
		return nil
	},
}

var syncStampCmd = &cobra.Command{
	Use:   "stamp <remote>",
	Short: "Write a fresh TIMESTAMP at remote so every copy is re-downloaded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, remote, err := openSync(args[0])
		if err != nil {
			return err
		}
		stamp, err := engine.WriteCurrentTimestamp(context.Background(), remote, uploadACL())
		if err != nil {
			return err
		}
		fmt.Printf("stamped %s (TIMESTAMP %s)\n", remote, stamp)
		return nil
	},
}

func init() {
	syncCmd.PersistentFlags().StringVar(&syncBase, "dest-storage", "", "storage base for relative remotes (default: storage.base)")
	syncCmd.PersistentFlags().StringVar(&syncACL, "acl", "", "canned ACL for written objects (default: storage.acl)")

	syncCmd.AddCommand(syncStatusCmd, syncDownCmd, syncUpCmd, syncStampCmd)
	rootCmd.AddCommand(syncCmd)
}

func openSync(remote string) (*artifactsync.Engine, storage.Location, error) {
	base := remote
	rel := ""
	if !strings.Contains(remote, "://") {
		base = syncBase
		if base == "" {
			base = cfg.Storage.Base
		}
		rel = remote
	}
	client, loc, err := storage.Open(base, storage.Options{
		GSUtilPath: cfg.Storage.GSUtil,
		BotoConfig: cfg.Storage.BotoConfig,
		MinVersion: cfg.Storage.MinVersion,
	}, runner.NewExecRunner(logger), logger)
	if err != nil {
		return nil, storage.Location{}, err
	}
	if rel != "" {
		loc = loc.Join(rel)
	}
	return artifactsync.New(client, logger), loc, nil
}

func uploadACL() storage.ACL {
	switch {
	case syncACL != "":
		return storage.ACL(syncACL)
	case cfg.Storage.ACL != "":
		return storage.ACL(cfg.Storage.ACL)
	}
	return config.DefaultACL
}

func markerString(v string, ok bool) string {
	if !ok {
		return "(none)"
	}
	return v
}
