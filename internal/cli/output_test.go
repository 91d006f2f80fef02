package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitError(t *testing.T) {
	base := errors.New("boom")
	err := WrapExitError(ExitCommandError, "failed to open database", base)

	assert.Equal(t, "failed to open database: boom", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(base))
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	assert.NoError(t, f.Success("ignored", func(w io.Writer) { fmt.Fprint(w, "hello") }))
	assert.Equal(t, "hello", buf.String())

	buf.Reset()
	assert.NoError(t, f.Error("E_X", "went wrong", nil))
	assert.Equal(t, "Error [E_X]: went wrong\n", buf.String())
}

func TestOutputFormatter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	assert.NoError(t, f.Success(map[string]int{"n": 1}, nil))
	resp := decodeResponse(t, buf.String())
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"n": float64(1)}, resp.Data)

	buf.Reset()
	assert.NoError(t, f.Error("E_X", "went wrong", "detail"))
	resp = decodeResponse(t, buf.String())
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_X", resp.Error.Code)
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag}

	f.VerboseLog("quiet")
	assert.Empty(t, diag.String())

	f.Verbose = true
	f.VerboseLog("loud %d", 1)
	assert.Equal(t, "loud 1\n", diag.String())
	assert.Empty(t, out.String())
}
