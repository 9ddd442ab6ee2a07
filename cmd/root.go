package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dpfs-local-mirror",
	Short: "Re-export a local directory tree over a virtio-fs device",
	Long: `dpfs-local-mirror is the file server translation layer that sits
between a SmartNIC/DPU's virtio-fs device and a local backing directory: it
maps FUSE opcodes to syscalls against the backing tree and completes
read/write through the kernel's asynchronous I/O interface.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfgFile)
	},
}

// Execute runs the root command, exiting non-zero with a message on
// failure (§6 "exit non-zero with a message on missing/invalid config").
// The command's context is cancelled on SIGINT/SIGTERM (§9 "Signal
// handling"); serve then returns, unregistering the device and shutting
// the server down (see fs.Server.Shutdown for what that does not wait for).
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to the TOML config file (required)")
	_ = rootCmd.MarkPersistentFlagRequired("config")
}
