package main

import (
	"context"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

// @title Instruction API
// @version 1.0
// @description Approval workflow for master instructions and master equipment activities.
// @BasePath /
func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "instructapi",
		Short: "master instruction approval workflow service",
		Example: `instructapi serve
instructapi migrate
instructapi documents list --kind instructions --status Approved`,
		SilenceUsage: true,
		// serve is the default so the container entrypoint needs no arguments.
		RunE: runServe,
	}

	root.AddCommand(newServeCmd(), newMigrateCmd(), newDocumentsCmd())
	root.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	root.CompletionOptions.HiddenDefaultCmd = true
	return root
}
