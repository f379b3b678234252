// -----------------------------------------------------------------------
// Last Modified: Thursday, 30th July 2026 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

func (c *configPaths) Type() string {
	return "stringArray"
}

var (
	configFiles configPaths
	serverPort  int
	serverHost  string

	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "vetting-core",
	Short: "Job feed freshness and candidate vetting automation core",
	Long:  "Keeps a job feed fresh against an ATS and vets inbound applicants against open requisitions through an embedding pre-filter and an LLM scorer.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfigAndLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().VarP(&configFiles, "config", "c", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "p", 0, "Server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverHost, "host", "", "Server host (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfigAndLogger performs the required startup order: load config
// (defaults -> files -> env), apply CLI overrides, then initialize the
// logger from the final configuration.
func loadConfigAndLogger() error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("vetting-core.toml"); err == nil {
			configFiles = append(configFiles, "vetting-core.toml")
		} else if _, err := os.Stat("deployments/local/vetting-core.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/vetting-core.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, serverPort, serverHost)

	logger = common.SetupLogger(config)

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
