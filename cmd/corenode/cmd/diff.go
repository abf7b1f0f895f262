package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumeranet/corekad/internal/merkle"
	corenode "github.com/lumeranet/corekad/internal/node"
	"github.com/lumeranet/corekad/pkg/config"
)

var diffCmd = &cobra.Command{
	Use:   "diff <old-root> <new-root>",
	Short: "List keys whose value differs between two roots (hex StoreKeys)",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		cfg = config.Default()
	}

	self, err := corenode.LoadOrCreateIdentity(cfg.DataDir())
	if err != nil {
		return err
	}

	oldKey, err := corenode.ParseStoreKey(args[0])
	if err != nil {
		return fmt.Errorf("diff: old-root: %w", err)
	}
	newKey, err := corenode.ParseStoreKey(args[1])
	if err != nil {
		return fmt.Errorf("diff: new-root: %w", err)
	}

	n, err := corenode.Open(ctx, cfg, self, &oldKey)
	if err != nil {
		return err
	}
	defer n.Close()

	changes, err := n.Diff(ctx, merkle.Root{Key: oldKey}, merkle.Root{Key: newKey})
	if err != nil {
		return err
	}
	for _, c := range changes {
		switch {
		case c.New == nil:
			fmt.Printf("- %s\n", c.Key)
		case c.Old == nil:
			fmt.Printf("+ %s = %s\n", c.Key, c.New)
		default:
			fmt.Printf("~ %s = %s (was %s)\n", c.Key, c.New, c.Old)
		}
	}
	return nil
}
