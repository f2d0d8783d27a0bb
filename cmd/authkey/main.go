// Package main is the API key management CLI for the scraper's
// authentication database.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ucsd-tools/webreg-scraper/internal/authstore"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:           "authkey",
		Short:         "Manage API keys for the WebReg scraper gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", envOr("AUTH_DB", "auth.db"), "path to the key database")

	root.AddCommand(createCmd(), editDescCmd(), deleteCmd(), checkCmd(), showAllCmd())

	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func openStore() (*authstore.Store, error) {
	store, err := authstore.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open key database at %s: %w", dbPath, err)
	}
	return store, nil
}

func createCmd() *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			credential, err := store.Issue(desc)
			if err != nil {
				return err
			}
			fmt.Println(credential)
			return nil
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "", "description for the new key")
	return cmd
}

func editDescCmd() *cobra.Command {
	var prefix, desc string
	cmd := &cobra.Command{
		Use:   "editDesc",
		Short: "Replace a key's description (omit --desc to clear it)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if store.EditDescription(prefix, desc) {
				fmt.Println("Description updated.")
			} else {
				fmt.Printf("No key with prefix %s.\n", prefix)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "prefix of the key to edit")
	cmd.Flags().StringVar(&desc, "desc", "", "new description")
	_ = cmd.MarkFlagRequired("prefix")
	return cmd
}

func deleteCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if store.DeleteByPrefix(prefix) {
				fmt.Println("Key deleted.")
			} else {
				fmt.Printf("No key with prefix %s.\n", prefix)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "prefix of the key to delete")
	_ = cmd.MarkFlagRequired("prefix")
	return cmd
}

func checkCmd() *cobra.Command {
	var prefix, token string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fmt.Println(store.Validate(prefix, token))
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix")
	cmd.Flags().StringVar(&token, "token", "", "key token")
	_ = cmd.MarkFlagRequired("prefix")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func showAllCmd() *cobra.Command {
	var showToken bool
	cmd := &cobra.Command{
		Use:   "showAll",
		Short: "List every API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries := store.ListAll()
			if len(entries) == 0 {
				fmt.Println("No keys.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			if showToken {
				fmt.Fprintln(w, "PREFIX\tTOKEN\tCREATED\tEXPIRES\tDESCRIPTION")
			} else {
				fmt.Fprintln(w, "PREFIX\tCREATED\tEXPIRES\tDESCRIPTION")
			}
			for _, e := range entries {
				created := e.CreatedAt.Format(time.RFC3339)
				expires := e.ExpiresAt.Format(time.RFC3339)
				if showToken {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Prefix, e.Token, created, expires, e.Description)
				} else {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Prefix, created, expires, e.Description)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&showToken, "showToken", false, "include the secret token column")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
