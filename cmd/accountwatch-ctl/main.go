// Command accountwatch-ctl is the operator CLI: sink inspection, migrations
// run by hand, and ad hoc jq filtering of raw enrichment payloads, all
// out-of-band from the main ingestion binary.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "accountwatch-ctl",
		Usage: "Operator CLI for the accountwatch ingestion pipeline",
		Description: `A command-line tool for managing and debugging the accountwatch sink.

Use this CLI to run migrations by hand, inspect committed transactions, and
run ad hoc jq filters against raw enrichment payloads.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			migrateCommand(),
			listTransactionsCommand(),
			getTransactionCommand(),
			inspectCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Sink database connection URL",
				EnvVars: []string{"SINK_DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "enrichment-endpoint",
				Usage:   "Enrichment Client base URL",
				EnvVars: []string{"ENRICHMENT_ENDPOINT"},
				Value:   "https://api.mainnet-beta.solana.com",
			},
			&cli.StringFlag{
				Name:    "bearer-token",
				Usage:   "Bearer token for the enrichment endpoint",
				EnvVars: []string{"STREAM_BEARER_TOKEN"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
