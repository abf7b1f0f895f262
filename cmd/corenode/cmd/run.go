package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	corenode "github.com/lumeranet/corekad/internal/node"
	"github.com/lumeranet/corekad/pkg/config"
	"github.com/lumeranet/corekad/pkg/logtrace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this peer, serving FIND_NODE/FIND_VALUE over gRPC",
	RunE:  runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runNode(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		cfg = config.Default()
		logtrace.Warn(ctx, "using default configuration", logtrace.Fields{logtrace.FieldError: err.Error()})
	}

	logtrace.SetGRPCLogger(ctx)

	self, err := corenode.LoadOrCreateIdentity(cfg.DataDir())
	if err != nil {
		return err
	}

	n, err := corenode.Open(ctx, cfg, self, nil)
	if err != nil {
		return err
	}
	defer n.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Node.ListenAddress, cfg.Node.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("run: listen on %s: %w", addr, err)
	}

	logtrace.Info(ctx, "corenode listening", logtrace.Fields{"address": addr, "node_id": self.String()})

	serveErr := make(chan error, 1)
	go func() { serveErr <- n.Serve(lis) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-sigCh:
		logtrace.Info(ctx, "shutting down corenode", logtrace.Fields{})
		n.GracefulStop()
		return nil
	}
}
