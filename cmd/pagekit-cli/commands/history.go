package commands

import (
	"context"
	"log"
	"os"
	"time"

	"pagekit/modules/demobank"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	historyBaseURL *string
	historyBackend *string
	historyDb      *string
)

func init() {
	historyBaseURL = historyCmd.Flags().String("base-url", "", "The site base URL to run against.")
	historyBackend = historyCmd.Flags().String("backend", "", "A configured backend name to take credentials from.")
	historyDb = historyCmd.Flags().String("db", "backends.db", "The backend configuration database.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history --base-url <url> <account-id>",
	Short: "Prints the full operation history of one account, across every page.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if *historyBaseURL == "" {
			log.Fatal("--base-url is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		creds, err := resolveCredentials(ctx, *historyBackend, *historyDb, "", "")
		if err != nil {
			log.Fatal(err)
		}

		module, err := demobank.New(demobank.Options{
			BaseURL:     *historyBaseURL,
			Credentials: creds,
		})
		if err != nil {
			log.Fatal(err)
		}

		txns, err := module.History(ctx, args[0])
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Date", "Label", "Amount"})
		for _, txn := range txns {
			date := ""
			if v, ok := txn.Get("date"); ok {
				if d, isTime := v.(time.Time); isTime {
					date = d.Format("2006-01-02")
				}
			}
			t.AppendRow(table.Row{
				txn.ID(),
				date,
				renderValue(txn, "label"),
				renderValue(txn, "amount"),
			})
		}
		t.Render()
	},
}
