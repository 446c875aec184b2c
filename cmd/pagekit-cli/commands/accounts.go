package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"pagekit/lib/backendcfg"
	"pagekit/lib/browser"
	"pagekit/lib/objects"
	"pagekit/modules/demobank"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	accountsBaseURL  *string
	accountsBackend  *string
	accountsDb       *string
	accountsUsername *string
	accountsPassword *string
	accountsFill     *bool
)

func init() {
	accountsBaseURL = accountsCmd.Flags().String("base-url", "", "The site base URL to run against.")
	accountsBackend = accountsCmd.Flags().String("backend", "", "A configured backend name to take credentials from.")
	accountsDb = accountsCmd.Flags().String("db", "backends.db", "The backend configuration database.")
	accountsUsername = accountsCmd.Flags().String("username", "", "Login username, overrides the backend's.")
	accountsPassword = accountsCmd.Flags().String("password", "", "Login password, overrides the backend's.")
	accountsFill = accountsCmd.Flags().Bool("fill", false, "Complete missing fields from the detail pages.")
	rootCmd.AddCommand(accountsCmd)
}

// resolveCredentials merges the backend store with flag overrides;
// flags win.
func resolveCredentials(ctx context.Context, backendName, dbPath, username, password string) (browser.Credentials, error) {
	creds := browser.Credentials{
		Username: username,
		Password: password,
	}
	if backendName == "" {
		return creds, nil
	}

	store, err := backendcfg.Open(dbPath)
	if err != nil {
		return creds, err
	}
	backend, err := store.Get(ctx, backendName)
	if err != nil {
		return creds, err
	}
	if creds.Username == "" {
		creds.Username = backend.Params["username"]
	}
	if creds.Password == "" {
		creds.Password = backend.Params["password"]
	}
	return creds, nil
}

func renderValue(obj *objects.Object, name string) string {
	switch obj.State(name) {
	case objects.Loaded:
		v, _ := obj.Get(name)
		return fmt.Sprint(v)
	case objects.NotAvailable:
		return "n/a"
	default:
		return ""
	}
}

var accountsCmd = &cobra.Command{
	Use:   "accounts --base-url <url> [--backend <name>] [--fill]",
	Short: "Lists the accounts of a demobank site.",
	Run: func(cmd *cobra.Command, args []string) {
		if *accountsBaseURL == "" {
			log.Fatal("--base-url is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		creds, err := resolveCredentials(ctx, *accountsBackend, *accountsDb, *accountsUsername, *accountsPassword)
		if err != nil {
			log.Fatal(err)
		}

		module, err := demobank.New(demobank.Options{
			BaseURL:     *accountsBaseURL,
			Credentials: creds,
		})
		if err != nil {
			log.Fatal(err)
		}

		accounts, err := module.Accounts(ctx)
		if err != nil {
			log.Fatal(err)
		}

		if *accountsFill {
			for _, account := range accounts {
				err := module.Fill(ctx, account, demobank.AccountFields...)
				if err != nil {
					log.Fatal(err)
				}
			}
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		header := table.Row{"ID"}
		for _, name := range demobank.AccountFields {
			header = append(header, name)
		}
		t.AppendHeader(header)
		for _, account := range accounts {
			row := table.Row{account.ID()}
			for _, name := range demobank.AccountFields {
				row = append(row, renderValue(account, name))
			}
			t.AppendRow(row)
		}
		t.Render()
	},
}
