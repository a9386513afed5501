package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// inspectCommand fetches the raw enrichment payload for a signature and runs
// a compiled jq filter over it, for ad hoc debugging of upstream payload
// shapes without redeploying the ingestion binary.
func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Fetch a raw enrichment payload and run a jq filter over it",
		ArgsUsage: "<signature>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter expression to run over the raw payload (default '.')",
				Value: ".",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: signature")
			}
			signature := c.Args().First()

			query, err := gojq.Parse(c.String("jq"))
			if err != nil {
				return fmt.Errorf("failed to parse jq filter: %w", err)
			}
			code, err := gojq.Compile(query)
			if err != nil {
				return fmt.Errorf("failed to compile jq filter: %w", err)
			}

			payload, err := fetchRawPayload(c.String("enrichment-endpoint"), c.String("bearer-token"), signature)
			if err != nil {
				return err
			}

			iter := code.Run(payload)
			for {
				v, ok := iter.Next()
				if !ok {
					return nil
				}
				if err, isErr := v.(error); isErr {
					return fmt.Errorf("jq filter error: %w", err)
				}
				out, err := json.MarshalIndent(v, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal jq result: %w", err)
				}
				fmt.Println(string(out))
			}
		},
	}
}

func fetchRawPayload(baseURL, bearerToken, signature string) (interface{}, error) {
	url := fmt.Sprintf("%s/tx/%s", baseURL, signature)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("enrichment endpoint returned %d", resp.StatusCode)
	}

	var payload interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return payload, nil
}
