package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marklange/marksheet/internal/expr"
	"github.com/marklange/marksheet/internal/ir"
	"github.com/marklange/marksheet/internal/schema"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	NoValidate bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <expression> <records.json>",
		Short: "Evaluate one ad-hoc expression against a record batch",
		Long: `Compile a single query expression and evaluate it against a JSON
array of student records.

The expression language is the same one the fixed query set uses:

  marksheet query '[*].name' records.json
  marksheet query '[?subject.science > 80].name' records.json
  marksheet query '[*].{Name: name, Result: subject.result}' records.json

The batch is schema-validated first unless --no-validate is given.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoValidate, "no-validate", false, "skip schema validation of the batch")

	return cmd
}

func runQuery(opts *QueryOptions, exprSrc, recordsPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	compiled, err := expr.Parse(exprSrc)
	if err != nil {
		_ = formatter.Error(ErrCodeBadExpr, err.Error(), nil)
		return WrapExitError(ExitCommandError, "compile expression", err)
	}

	data, err := os.ReadFile(recordsPath)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("failed to read records: %v", err), nil)
		return WrapExitError(ExitCommandError, "read records", err)
	}

	batch, err := loadBatch(data, opts.NoValidate, formatter)
	if err != nil {
		return err
	}

	result, err := expr.Evaluate(batch, compiled)
	if err != nil {
		_ = formatter.Error(ErrCodeBadExpr, err.Error(), nil)
		return WrapExitError(ExitFailure, "evaluate expression", err)
	}

	out, err := ir.Marshal(result)
	if err != nil {
		return WrapExitError(ExitCommandError, "marshal result", err)
	}

	if formatter.Format == "json" {
		fmt.Fprintf(formatter.Writer, "{\"status\":\"ok\",\"data\":%s}\n", out)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%s\n", out)
	return nil
}

// loadBatch decodes (and by default validates) the record batch.
func loadBatch(data []byte, skipValidation bool, formatter *OutputFormatter) (ir.Value, error) {
	if skipValidation {
		v, err := ir.Decode(data)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("invalid JSON: %v", err), nil)
			return nil, WrapExitError(ExitCommandError, "decode records", err)
		}
		return v, nil
	}

	validator, err := schema.NewValidator()
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("schema init: %v", err), nil)
		return nil, WrapExitError(ExitCommandError, "schema init", err)
	}

	batch, fieldErrs := validator.ValidateBatch(data)
	if len(fieldErrs) > 0 {
		return nil, outputValidationErrors(formatter, fieldErrs)
	}
	return batch, nil
}
