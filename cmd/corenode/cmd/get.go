package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	corenode "github.com/lumeranet/corekad/internal/node"
	"github.com/lumeranet/corekad/internal/merkle"
	"github.com/lumeranet/corekad/pkg/config"
)

var getRootFlag string

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a key from the local Merkle map",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().StringVar(&getRootFlag, "root", "", "Root StoreKey to read from (hex); defaults to the node's current root")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		cfg = config.Default()
	}

	self, err := corenode.LoadOrCreateIdentity(cfg.DataDir())
	if err != nil {
		return err
	}

	var rootKey *merkle.StoreKey
	if getRootFlag != "" {
		k, err := corenode.ParseStoreKey(getRootFlag)
		if err != nil {
			return err
		}
		rootKey = &k
	}

	n, err := corenode.Open(ctx, cfg, self, rootKey)
	if err != nil {
		return err
	}
	defer n.Close()

	value, found, err := n.Get(ctx, merkle.Key(args[0]))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("get: key %q not found", args[0])
	}
	fmt.Printf("%s\n", value)
	return nil
}
