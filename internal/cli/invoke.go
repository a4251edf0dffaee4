package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marklange/marksheet/internal/expr"
	"github.com/marklange/marksheet/internal/guard"
	"github.com/marklange/marksheet/internal/handler"
	"github.com/marklange/marksheet/internal/schema"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	StorePath   string
	QueriesPath string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <envelope.json>",
		Short: "Process one request envelope through the full pipeline",
		Long: `Process a request envelope (validate, dedupe, evaluate queries)
and print the response.

The envelope file holds {"requestId": "...", "body": {"result": [...]}}.
requestId is optional; without it the request is identified by a
canonical fingerprint of its body.

By default guard state is in-memory and lost when the process exits,
so every invocation of this command starts unseen. Pass --store to
persist guard state across invocations.

Example:
  marksheet invoke request.json --store guard.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StorePath, "store", "", "SQLite guard store path (default: in-memory)")
	cmd.Flags().StringVar(&opts.QueriesPath, "queries", "", "query set YAML file (default: built-in set)")

	return cmd
}

func runInvoke(opts *InvokeOptions, envelopePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	data, err := os.ReadFile(envelopePath)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("failed to read envelope: %v", err), nil)
		return WrapExitError(ExitCommandError, "read envelope", err)
	}

	var env handler.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("malformed envelope: %v", err), nil)
		return WrapExitError(ExitCommandError, "parse envelope", err)
	}

	h, cleanup, err := buildHandler(opts, formatter, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	formatter.VerboseLog("Processing envelope %s (requestId=%q)", envelopePath, env.RequestID)

	resp := h.Handle(env)

	if err := printResponse(formatter, resp); err != nil {
		return WrapExitError(ExitCommandError, "write response", err)
	}

	if resp.StatusCode >= 400 {
		return NewExitError(ExitFailure, fmt.Sprintf("request rejected with status %d", resp.StatusCode))
	}
	return nil
}

// buildHandler wires the schema validator, query set, and guard store
// selected by flags. The returned cleanup closes the store.
func buildHandler(opts *InvokeOptions, formatter *OutputFormatter, cmd *cobra.Command) (*handler.Handler, func(), error) {
	validator, err := schema.NewValidator()
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("schema init: %v", err), nil)
		return nil, nil, WrapExitError(ExitCommandError, "schema init", err)
	}

	queries := expr.DefaultSet()
	if opts.QueriesPath != "" {
		queries, err = expr.LoadSetFile(opts.QueriesPath)
		if err != nil {
			_ = formatter.Error(ErrCodeBadExpr, fmt.Sprintf("query set: %v", err), nil)
			return nil, nil, WrapExitError(ExitCommandError, "load query set", err)
		}
		formatter.VerboseLog("Loaded %d queries from %s", queries.Len(), opts.QueriesPath)
	}

	cleanup := func() {}
	var store guard.Store = guard.NewMemoryStore()
	if opts.StorePath != "" {
		sqliteStore, err := guard.OpenSQLite(opts.StorePath)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, fmt.Sprintf("guard store: %v", err), nil)
			return nil, nil, WrapExitError(ExitCommandError, "open guard store", err)
		}
		store = sqliteStore
		cleanup = func() { _ = sqliteStore.Close() }
		formatter.VerboseLog("Using SQLite guard store at %s", opts.StorePath)
	}

	log := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	return handler.New(validator, queries, guard.New(store), log), cleanup, nil
}

// printResponse writes a handler response in the configured format.
func printResponse(formatter *OutputFormatter, resp handler.Response) error {
	if formatter.Format == "json" {
		return json.NewEncoder(formatter.Writer).Encode(resp)
	}

	fmt.Fprintf(formatter.Writer, "status: %d\n", resp.StatusCode)
	fmt.Fprintf(formatter.Writer, "%s\n", resp.Body)
	return nil
}
