package cmd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	corenode "github.com/lumeranet/corekad/internal/node"
	"github.com/lumeranet/corekad/pkg/config"
)

var findNodeCmd = &cobra.Command{
	Use:   "find-node <target>",
	Short: "Run an iterative parallel FIND_NODE lookup against the network",
	Args:  cobra.ExactArgs(1),
	RunE:  runFindNode,
}

var findValueCmd = &cobra.Command{
	Use:   "find-value <target>",
	Short: "Run an iterative parallel FIND_VALUE lookup against the network",
	Args:  cobra.ExactArgs(1),
	RunE:  runFindValue,
}

func init() {
	rootCmd.AddCommand(findNodeCmd)
	rootCmd.AddCommand(findValueCmd)
}

func openNodeForSearch(ctx context.Context) (*corenode.Node, error) {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		cfg = config.Default()
	}
	self, err := corenode.LoadOrCreateIdentity(cfg.DataDir())
	if err != nil {
		return nil, err
	}
	return corenode.Open(ctx, cfg, self, nil)
}

func runFindNode(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openNodeForSearch(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	res, err := n.FindNodeSearch(ctx, []byte(args[0]))
	if err != nil {
		return err
	}
	for _, peer := range res.Closest {
		fmt.Printf("%s\n", peer.ID)
	}
	return nil
}

func runFindValue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	n, err := openNodeForSearch(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	res, err := n.FindValueSearch(ctx, []byte(args[0]))
	if err != nil {
		return err
	}
	if !res.Found {
		fmt.Println("not found")
		return nil
	}
	fmt.Printf("%s\n", hex.EncodeToString(res.Value))
	return nil
}
