package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// @title agentproxy
// @version 0.1.0
// @description Local model agent: token-gated task routes in front of an Ollama-compatible model server.
// @host localhost:8080
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "Run and inspect local model agents",
	Long: `agentd hosts one agent per process: a small HTTP service that checks a
shared bearer token, composes a task prompt and forwards it to a local
Ollama-compatible model server.

Agents differ only by profile (persona, default model, enabled tasks,
timeouts). Pick one with AGENT_NAME or --agent.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, checkCmd, profilesCmd)
}

// newLogger builds a production zap logger writing to stdout, or a
// development one when environment is "development"
func newLogger(environment string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if environment == "development" {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	return zapConfig.Build()
}
