package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/corefork/internal/config"
	"github.com/Iron-Ham/corefork/internal/logging"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Show the core count workers would be launched on",
	RunE:  runTopology,
}

func init() {
	rootCmd.AddCommand(topologyCmd)
}

func runTopology(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	topo, err := newDiscoverer(cfg, logging.NopLogger()).Discover(cmd.Context())
	if err != nil {
		return err
	}

	out := newPrinter(cmd.OutOrStdout())
	out.Title("CPU topology")
	rows := [][]string{
		{"physical", strconv.Itoa(topo.Physical)},
		{"virtual", strconv.Itoa(topo.Virtual)},
		{"workers", out.ok.Render(strconv.Itoa(topo.Resolved()))},
	}
	if topo.NUMARange != "" {
		rows = append(rows, []string{"numa", topo.NUMARange})
	}
	out.Table([]string{"CPUS", "COUNT"}, rows)
	return nil
}
