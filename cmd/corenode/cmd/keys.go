package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	corenode "github.com/lumeranet/corekad/internal/node"
	"github.com/lumeranet/corekad/pkg/config"
)

var keysForceFlag bool

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show or regenerate this node's identity",
	RunE:  runKeys,
}

func init() {
	keysCmd.Flags().BoolVar(&keysForceFlag, "regenerate", false, "Discard the existing identity and generate a new one")
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		cfg = config.Default()
	}

	identityPath := filepath.Join(cfg.DataDir(), "identity.key")
	if keysForceFlag {
		if _, err := os.Stat(identityPath); err == nil {
			confirmed := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("This will overwrite %s. Continue?", identityPath),
				Default: false,
			}
			if err := survey.AskOne(prompt, &confirmed); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("aborted")
				return nil
			}
			if err := os.Remove(identityPath); err != nil {
				return err
			}
		}
	}

	self, err := corenode.LoadOrCreateIdentity(cfg.DataDir())
	if err != nil {
		return err
	}
	fmt.Println(self.String())
	return nil
}
