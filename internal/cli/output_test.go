package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	err := NewExitError(ExitFailure, "request rejected")
	assert.Equal(t, "request rejected", err.Error())
	assert.Equal(t, ExitFailure, GetExitCode(err))

	wrapped := WrapExitError(ExitCommandError, "read envelope", errors.New("no such file"))
	assert.Equal(t, "read envelope: no such file", wrapped.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}

func TestGetExitCodeUnwraps(t *testing.T) {
	inner := NewExitError(ExitCommandError, "inner")
	outer := fmt.Errorf("outer: %w", inner)
	assert.Equal(t, ExitCommandError, GetExitCode(outer))
}

func TestGetExitCodePlainError(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestFormatterSuccessJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]int{"records": 3}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestFormatterErrorJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Error(ErrCodeBadExpr, "bad expression", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBadExpr, resp.Error.Code)
	assert.Equal(t, "bad expression", resp.Error.Message)
}

func TestFormatterErrorText(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Error(ErrCodeNotFound, "file missing", nil))
	assert.Equal(t, "Error [E002]: file missing\n", buf.String())
}

func TestFormatterVerboseLog(t *testing.T) {
	var out, errOut bytes.Buffer

	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}
	f.VerboseLog("loaded %d queries", 7)
	assert.Empty(t, out.String())
	assert.Equal(t, "loaded 7 queries\n", errOut.String())

	quiet := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut}
	quiet.VerboseLog("should not appear")
	assert.Equal(t, "loaded 7 queries\n", errOut.String())
}
