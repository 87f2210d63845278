package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/opsmono/agentproxy/internal/handlers"
	"github.com/spf13/cobra"
)

var (
	checkURL     string
	checkTimeout time.Duration
)

// errDegraded makes check exit non-zero when the model server is down
var errDegraded = errors.New("agent is degraded")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Query a running agent's health",
	Long: `Call GET /health on a running agent and print the result.

Exits non-zero when the agent cannot be reached or reports that its
model server is unreachable.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkURL, "url", "http://localhost:8080", "base URL of the agent")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 5*time.Second, "request timeout")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	var health handlers.HealthResponse
	resp, err := resty.New().
		SetTimeout(checkTimeout).
		R().
		SetContext(cmd.Context()).
		SetResult(&health).
		Get(strings.TrimRight(checkURL, "/") + "/health")
	if err != nil {
		return fmt.Errorf("reach agent at %s: %w", checkURL, err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("agent at %s returned status %d", checkURL, resp.StatusCode())
	}

	out, err := json.MarshalIndent(health, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if health.Status != "healthy" {
		return errDegraded
	}
	return nil
}
