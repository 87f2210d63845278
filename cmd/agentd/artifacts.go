package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/opsmono/agentproxy/internal/artifacts"
	"github.com/opsmono/agentproxy/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	artifactsAgent string
	artifactsDir   string
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List responses an agent saved to its context directory",
	Long: `List the artifacts in an agent's context directory, newest first.

The directory is <CONTEXT_DIR>/<agent>; --dir points at a context
directory directly.`,
	RunE: runArtifacts,
}

func init() {
	artifactsCmd.Flags().StringVar(&artifactsAgent, "agent", "", "agent name (overrides AGENT_NAME)")
	artifactsCmd.Flags().StringVar(&artifactsDir, "dir", "", "context directory to list")
	rootCmd.AddCommand(artifactsCmd)
}

func runArtifacts(cmd *cobra.Command, _ []string) error {
	dir := artifactsDir
	if dir == "" {
		if artifactsAgent != "" {
			os.Setenv("AGENT_NAME", artifactsAgent)
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		dir = cfg.AgentContextDir()
	}

	list, err := artifacts.NewStore(dir, nil, zap.NewNop()).List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintf(out, "no artifacts in %s\n", dir)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tSAVED")
	for _, a := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", filepath.Join(dir, a.Name), humanize.Bytes(uint64(a.Size)), humanize.Time(a.Modified))
	}
	return w.Flush()
}
