package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/solwatch/accountwatch/service/domain"
	"github.com/solwatch/accountwatch/service/sink"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run pending sink migrations",
		Action: func(c *cli.Context) error {
			pool, closer, err := getPool(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := sink.Migrate(context.Background(), pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintln(os.Stderr, "migrations applied")
			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List recently committed transactions",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			pool, closer, err := getPool(c)
			if err != nil {
				return err
			}
			defer closer()

			s := sink.New(pool, nil)
			txs, err := s.ListTransactions(context.Background(), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(txs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNATURE\tSLOT\tFEE PAYER\tSUCCESS\tBLOCK TIME")
			for _, tx := range txs {
				blockTime := "unknown"
				if tx.BlockTime != nil {
					blockTime = tx.BlockTime.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\n", tx.Signature, tx.Slot, tx.FeePayer, tx.Success, blockTime)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(txs))
			return nil
		},
	}
}

func getTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-transaction",
		Usage:     "Get one transaction and its balance changes by signature",
		Aliases:   []string{"get"},
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: signature")
			}
			signature := c.Args().First()

			pool, closer, err := getPool(c)
			if err != nil {
				return err
			}
			defer closer()

			s := sink.New(pool, nil)
			tx, err := s.GetTransaction(context.Background(), signature)
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(tx)
			}

			printTransactionDetailed(tx)
			return nil
		},
	}
}

func printTransactionDetailed(tx *domain.ParsedTransaction) {
	fmt.Printf("Signature:    %s\n", tx.Signature)
	fmt.Printf("Slot:         %d\n", tx.Slot)
	fmt.Printf("Fee Payer:    %s\n", tx.FeePayer)
	fmt.Printf("Fee:          %d lamports\n", tx.Fee)
	fmt.Printf("Success:      %t\n", tx.Success)
	if tx.BlockTime != nil {
		fmt.Printf("Block Time:   %s\n", tx.BlockTime.Format(time.RFC3339))
	}
	if tx.ComputeUnits != nil {
		fmt.Printf("Compute Units: %d\n", *tx.ComputeUnits)
	}
	fmt.Println("Balance Changes:")
	for _, bc := range tx.BalanceChanges {
		mint := "native"
		if bc.Mint != nil {
			mint = *bc.Mint
		}
		fmt.Printf("  %s  %s  %d -> %d (delta %d)\n", bc.AccountAddress, mint, bc.Pre, bc.Post, bc.Delta())
	}
}

func getPool(c *cli.Context) (*pgxpool.Pool, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set SINK_DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, func() { pool.Close() }, nil
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
