package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ghiac/ledgermind"
	"github.com/ghiac/ledgermind/config"
)

func main() {
	if err := rootCMD().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "ledgermind",
		Short:        "Agent cognition core for small-business accounting",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML); LEDGERMIND_* env vars override it")

	open := func() (*ledgermind.LedgerMind, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		return ledgermind.New(cfg)
	}

	root.AddCommand(serveCMD(open), memoryCMD(open), actionsCMD(open))
	return root
}

type opener func() (*ledgermind.LedgerMind, error)

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
