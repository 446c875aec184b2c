package commands

import (
	"log"
	"os"

	"pagekit/lib/backendcfg"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	backendsDb          *string
	backendsAddName     *string
	backendsAddUsername *string
	backendsAddPassword *string
)

func init() {
	backendsDb = backendsCmd.PersistentFlags().String("db", "backends.db", "The backend configuration database.")
	backendsAddName = backendsAddCmd.Flags().String("name", "", "The backend name; generated from the module name when omitted.")
	backendsAddUsername = backendsAddCmd.Flags().String("username", "", "Login username.")
	backendsAddPassword = backendsAddCmd.Flags().String("password", "", "Login password.")
	backendsCmd.AddCommand(backendsAddCmd)
	backendsCmd.AddCommand(backendsListCmd)
	backendsCmd.AddCommand(backendsRmCmd)
	rootCmd.AddCommand(backendsCmd)
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Manages configured backends: named module instances with credentials.",
}

var backendsAddCmd = &cobra.Command{
	Use:   "add <module> [--name <name>] [--username <u>] [--password <p>]",
	Short: "Configures a new backend for a module.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := backendcfg.Open(*backendsDb)
		if err != nil {
			log.Fatal(err)
		}

		name := *backendsAddName
		if name == "" {
			name, err = backendcfg.InstanceName(args[0])
			if err != nil {
				log.Fatal(err)
			}
		}

		err = store.Save(cmd.Context(), backendcfg.Backend{
			Name:   name,
			Module: args[0],
			Params: map[string]string{
				"username": *backendsAddUsername,
				"password": *backendsAddPassword,
			},
		})
		if err != nil {
			log.Fatal(err)
		}
		cmd.Println(name)
	},
}

var backendsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Prints the configured backends.",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := backendcfg.Open(*backendsDb)
		if err != nil {
			log.Fatal(err)
		}
		backends, err := store.List(cmd.Context())
		if err != nil {
			log.Fatal(err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Name", "Module", "Username", "Created"})
		for _, backend := range backends {
			t.AppendRow(table.Row{
				backend.Name,
				backend.Module,
				backend.Params["username"],
				backend.Created.Format("2006-01-02 15:04"),
			})
		}
		t.Render()
	},
}

var backendsRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Removes a configured backend.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := backendcfg.Open(*backendsDb)
		if err != nil {
			log.Fatal(err)
		}
		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			log.Fatal(err)
		}
	},
}
