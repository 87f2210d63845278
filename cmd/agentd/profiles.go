package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/opsmono/agentproxy/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var profilesYAML bool

var profilesCmd = &cobra.Command{
	Use:   "profiles [name]",
	Short: "List built-in agent profiles",
	Long: `List the built-in agent profiles, or print one as YAML.

The YAML output is a valid AGENT_PROFILE_FILE and a starting point for a
custom agent.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfiles,
}

func init() {
	profilesCmd.Flags().BoolVar(&profilesYAML, "yaml", false, "print profiles as YAML")
}

func runProfiles(cmd *cobra.Command, args []string) error {
	names := config.ProfileNames()
	asYAML := profilesYAML
	if len(args) == 1 {
		if _, ok := config.BuiltinProfiles[args[0]]; !ok {
			return fmt.Errorf("unknown profile %q (known: %s)", args[0], strings.Join(names, ", "))
		}
		names = args
		asYAML = true
	}

	out := cmd.OutOrStdout()
	if asYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		for _, name := range names {
			if err := enc.Encode(config.BuiltinProfiles[name]); err != nil {
				return err
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODEL\tTASKS\tDESCRIPTION")
	for _, name := range names {
		p := config.BuiltinProfiles[name]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.DefaultModel, strings.Join(p.Tasks, ","), p.Description)
	}
	return w.Flush()
}
