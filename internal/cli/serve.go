package cli

import (
	"github.com/spf13/cobra"

	"github.com/haruo/kaigi/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and its HTTP API",
	Long: `Run the conversation engine with its HTTP API in the foreground.
POST /query runs one conversation per request; /schema, /health, and
/metrics describe the system. Stops on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()

	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	if err := application.Start(); err != nil {
		_ = application.Stop()
		return err
	}

	application.Wait()
	return nil
}
