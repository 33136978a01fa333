package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/crmdesk/internal/database"
	"github.com/dukerupert/crmdesk/internal/store"
)

var apikeyName string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and print the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		v, err := database.Version(a.db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is at schema version %d\n", a.cfg.DBPath, v)
		return nil
	},
}

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage admin API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	RunE: func(cmd *cobra.Command, args []string) error {
		if apikeyName == "" {
			return fmt.Errorf("name is required (use --name)")
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		key, plaintext, err := store.NewAPIKeyStore(a.db).Create(apikeyName)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created API key %d (%s)\n", key.ID, key.Name)
		fmt.Fprintf(out, "%s\n", plaintext)
		fmt.Fprintln(out, "Store it now, it cannot be shown again.")
		return nil
	},
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		keys, err := store.NewAPIKeyStore(a.db).List()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tLAST USED\tSTATUS")
		for _, k := range keys {
			lastUsed := "never"
			if k.LastUsedAt != nil {
				lastUsed = k.LastUsedAt.Format("2006-01-02 15:04")
			}
			status := "active"
			if k.RevokedAt != nil {
				status = "revoked"
			}
			fmt.Fprintf(tw, "%d\t%s\tcrm_%s\t%s\t%s\n", k.ID, k.Name, k.Prefix, lastUsed, status)
		}
		return tw.Flush()
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid key id %q", args[0])
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := store.NewAPIKeyStore(a.db).Revoke(id); err != nil {
			if err == store.ErrNotFound {
				return fmt.Errorf("no active key with id %d", id)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Revoked API key %d\n", id)
		return nil
	},
}

func init() {
	apikeyCreateCmd.Flags().StringVar(&apikeyName, "name", "", "label for the key")
	apikeyCmd.AddCommand(apikeyCreateCmd)
	apikeyCmd.AddCommand(apikeyListCmd)
	apikeyCmd.AddCommand(apikeyRevokeCmd)
}
