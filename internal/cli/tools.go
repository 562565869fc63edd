package cli

import (
	"github.com/spf13/cobra"

	"github.com/haruo/kaigi/internal/app"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Run the standalone tool server",
	Long: `Run the tool suite behind the wire protocol, without an engine.
An engine elsewhere points tools.endpoint at this process and calls the
SQL, web, and code tools remotely. Stops on SIGINT or SIGTERM.`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()

	server, err := app.NewToolServer(cfg, log)
	if err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		_ = server.Stop()
		return err
	}

	server.Wait()
	return nil
}
