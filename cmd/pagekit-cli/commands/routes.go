package commands

import (
	"log"
	"os"
	"strings"

	"pagekit/modules/demobank"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var routesBaseURL *string

func init() {
	routesBaseURL = routesCmd.Flags().String("base-url", "https://demo.bank.example", "The site base URL to build the registry against.")
	rootCmd.AddCommand(routesCmd)
}

var routesCmd = &cobra.Command{
	Use:   "routes [--base-url <url>]",
	Short: "Prints the page routing table of the demobank module.",
	Run: func(cmd *cobra.Command, args []string) {
		registry, err := demobank.NewRegistry(*routesBaseURL)
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Handler", "Patterns"})
		for _, route := range registry.Routes() {
			t.AppendRow(table.Row{
				route.HandlerType(),
				strings.Join(route.Patterns(), "\n"),
			})
		}
		t.Render()
	},
}
