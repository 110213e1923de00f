package cmd

import (
	"time"

	"tpf/internal/client"

	"github.com/spf13/cobra"
)

// replServer is the base URL of the pipeline host to talk to.
var replServer string

// replTimeout bounds each request the shell sends.
var replTimeout time.Duration

// replCmd defines the repl command structure.
// It opens an interactive shell against a running development host.
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive shell against a running pipeline host",
	Long: `Connects to a development host started with 'tpf serve' and provides
an interactive shell for sending inputs through the pipeline.

Available commands in the shell:
  send <json>          run the pipeline over one input
  stream <json-array>  run the pipeline over an input stream
  policy <name>        set the cache policy for subsequent requests
  replay on|off        toggle the replay marker
  status               show the client-side request context
  health               query /healthz and /readyz
  steps                list the planned stages
  help                 list the commands
  exit                 leave the shell

Every request carries the x-tpf-* context headers; responses print the
returned x-tpf-cache-status alongside the result.

Note: the pipeline host must be running (use 'tpf serve') before using
this command.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)

	replCmd.Flags().StringVar(&replServer, "server", client.DefaultServerURL, "Base URL of the pipeline host")
	replCmd.Flags().DurationVar(&replTimeout, "timeout", 30*time.Second, "Per-request timeout")
}

func runRepl(cmd *cobra.Command, args []string) error {
	c := client.New(client.Options{
		BaseURL: replServer,
		Timeout: replTimeout,
		Version: GetVersion(),
	})
	repl := client.NewREPL(c)
	return repl.Run(cmd.Context())
}
