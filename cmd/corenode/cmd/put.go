package cmd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumeranet/corekad/internal/merkle"
	corenode "github.com/lumeranet/corekad/internal/node"
	"github.com/lumeranet/corekad/pkg/config"
)

var putRootFlag string

var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Insert a key/value pair into the local Merkle map and print the new root",
	Args:  cobra.ExactArgs(2),
	RunE:  runPut,
}

func init() {
	putCmd.Flags().StringVar(&putRootFlag, "root", "", "Root StoreKey to insert into (hex); defaults to the node's current root")
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
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
	if putRootFlag != "" {
		k, err := corenode.ParseStoreKey(putRootFlag)
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

	newRoot, err := n.Put(ctx, merkle.Key(args[0]), merkle.Value(args[1]))
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(newRoot.Key[:]))
	return nil
}
