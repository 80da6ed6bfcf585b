package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cafescout/cafescout/pkg/logging"
)

var validateKeyCmd = &cobra.Command{
	Use:   "validate-key",
	Short: "Check the configured AI credential with a minimal request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logging.Sync(log) }()

		check := newClassifier(cfg, log, nil).ValidateCredentials(cmd.Context())
		w := cmd.OutOrStdout()
		if check.OK {
			fmt.Fprintf(w, "%s: %s (%s)\n", cfg.AI.Provider, check.Reason, cfg.AI.Model)
			return nil
		}
		fmt.Fprintf(w, "%s: %s [%s]\n", cfg.AI.Provider, check.Reason, check.Kind)
		if check.Err != nil {
			return check.Err
		}
		return errors.New(check.Reason)
	},
}
