package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marklange/marksheet/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                `json:"valid"`
	Records int                 `json:"records"`
	Errors  []schema.FieldError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <records.json>",
		Short: "Validate a record batch without evaluating queries",
		Long: `Validate a JSON array of student records against the record schema.

Reports every violating field with its path, so a batch can be fixed
in one pass. No guard state is touched and no queries run.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, recordsPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	data, err := os.ReadFile(recordsPath)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("failed to read records: %v", err), nil)
		return WrapExitError(ExitCommandError, "read records", err)
	}

	validator, err := schema.NewValidator()
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("schema init: %v", err), nil)
		return WrapExitError(ExitCommandError, "schema init", err)
	}

	batch, fieldErrs := validator.ValidateBatch(data)
	if len(fieldErrs) > 0 {
		return outputValidationErrors(formatter, fieldErrs)
	}

	formatter.VerboseLog("Validated %d record(s) from %s", len(batch), recordsPath)

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Records: len(batch)})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d record(s) valid\n", len(batch))
	return nil
}

// outputValidationErrors outputs schema violations and returns the
// validation-failure exit code.
func outputValidationErrors(formatter *OutputFormatter, errs []schema.FieldError) error {
	if formatter.Format == "json" {
		if err := formatter.Error(ErrCodeBadRequest, "schema violation", ValidationResult{
			Valid:  false,
			Errors: errs,
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, fe := range errs {
		if fe.Path != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", fe.Path, fe.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s\n", fe.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
