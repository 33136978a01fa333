package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/crmdesk/internal/store"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the subscription check once and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.runner(nil).Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <user-id>",
	Short: "Show the classification and recommended action for one user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := store.NewUserStore(a.db).GetByID(args[0])
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %s not found", args[0])
		}

		now := time.Now().UTC()
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"user":           u,
			"classification": a.eval.Classify(u.Subscription, now),
			"recommendation": a.eval.Recommend(*u, now),
			"healthScore":    a.eval.HealthScore(u.Subscription, now),
			"gracePeriod":    a.eval.GracePeriod(u.Subscription),
			"inGracePeriod":  a.eval.InGracePeriod(u.Subscription, now),
		})
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
