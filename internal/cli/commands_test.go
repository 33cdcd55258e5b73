package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = "testdata/customer.yaml"

// cliStore runs commands against one temp database.
type cliStore struct {
	t       *testing.T
	backend string
	db      string
}

func newCLIStore(t *testing.T, backend string) *cliStore {
	t.Helper()
	s := &cliStore{t: t, backend: backend, db: filepath.Join(t.TempDir(), "elements.db")}
	_, err := s.run("schema", "apply", testSchema)
	require.NoError(t, err)
	return s
}

// run executes the root command and returns its stdout.
func (s *cliStore) run(args ...string) (string, error) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--backend", s.backend, "--db", s.db}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

// runJSON executes the command with --format json and decodes the response.
func (s *cliStore) runJSON(args ...string) (CLIResponse, error) {
	s.t.Helper()
	out, err := s.run(append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(s.t, json.Unmarshal([]byte(out), &resp), out)
	return resp, err
}

func (s *cliStore) save(args ...string) map[string]any {
	s.t.Helper()
	resp, err := s.runJSON(append([]string{"save", "Customer", "--user", "alice"}, args...)...)
	require.NoError(s.t, err)
	m, ok := resp.Data.(map[string]any)
	require.True(s.t, ok, "unexpected data %T", resp.Data)
	return m
}

func TestCLI_ElementLifecycle(t *testing.T) {
	for _, backend := range []string{"sqlite", "bolt"} {
		t.Run(backend, func(t *testing.T) {
			s := newCLIStore(t, backend)

			created := s.save("--data", `{"name":"Ann","customerNumber":7}`)
			id, _ := created["id"].(string)
			require.NotEmpty(t, id)
			assert.Equal(t, float64(1), created["version"])
			assert.Equal(t, "Ann", created["name"])

			updated := s.save("--data", `{"id":"`+id+`","version":1,"name":"Anna"}`)
			assert.Equal(t, float64(2), updated["version"])

			// stale version
			resp, err := s.runJSON("save", "Customer", "--data", `{"id":"`+id+`","version":1,"name":"Bea"}`)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			require.NotNil(t, resp.Error)
			assert.Equal(t, "CONFLICT", resp.Error.Code)

			out, err := s.run("get", id)
			require.NoError(t, err)
			assert.Contains(t, out, "name: Anna\n")
			assert.Contains(t, out, "version: 2\n")

			out, err = s.run("get", id, "--at", fmt.Sprint(created["revision"]))
			require.NoError(t, err)
			assert.Contains(t, out, "name: Ann\n")
			assert.Contains(t, out, "version: 1\n")

			_, err = s.run("check-version", "Customer", id, "2")
			require.NoError(t, err)
			_, err = s.run("check-version", "Customer", id, "1")
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			resp, err = s.runJSON("history", id)
			require.NoError(t, err)
			mods, ok := resp.Data.([]any)
			require.True(t, ok)
			require.Len(t, mods, 2)
			assert.Equal(t, "alice", mods[0].(map[string]any)["user"])

			out, err = s.run("delete", "Customer", id)
			require.NoError(t, err)
			assert.Contains(t, out, "Deleted Customer "+id)

			out, err = s.run("get", id)
			require.NoError(t, err)
			assert.Contains(t, out, "deleted: true\n")

			_, err = s.run("delete", "Customer", id)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
		})
	}
}

func TestCLI_Find(t *testing.T) {
	s := newCLIStore(t, "sqlite")
	s.save("--data", `{"name":"Ann","customerNumber":1}`)
	s.save("--data", `{"name":"Bea","customerNumber":2}`)
	s.save("--data", `{"name":"Cid","customerNumber":3}`)

	tests := []struct {
		name  string
		args  []string
		names []string
	}{
		{"equals", []string{"--where", "name=Bea"}, []string{"Bea"}},
		{"wildcard", []string{"--where", "name=%e%"}, []string{"Bea"}},
		{"greater than", []string{"--where", "customerNumber=>1", "--sort", "name"}, []string{"Bea", "Cid"}},
		{"half-open interval", []string{"--where", "customerNumber=[1,3)", "--sort", "name"}, []string{"Ann", "Bea"}},
		{"in", []string{"--where", "customerNumber={1,3}", "--sort", "name:desc"}, []string{"Cid", "Ann"}},
		{"negated", []string{"--where", "!name=Ann", "--sort", "name"}, []string{"Bea", "Cid"}},
		{"page", []string{"--sort", "name", "--page", "1", "--page-size", "2"}, []string{"Cid"}},
		{"no match", []string{"--where", "customerNumber=>3"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.runJSON(append([]string{"find", "Customer"}, tt.args...)...)
			require.NoError(t, err)

			items, ok := resp.Data.([]any)
			require.True(t, ok, "unexpected data %T", resp.Data)
			names := make([]string, len(items))
			for i, item := range items {
				names[i], _ = item.(map[string]any)["name"].(string)
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestCLI_FindErrors(t *testing.T) {
	s := newCLIStore(t, "sqlite")

	tests := []struct {
		name     string
		args     []string
		wantExit int
	}{
		{"unknown type", []string{"find", "Order"}, ExitFailure},
		{"unknown attribute", []string{"find", "Customer", "--where", "color=red"}, ExitFailure},
		{"malformed filter", []string{"find", "Customer", "--where", "name"}, ExitCommandError},
		{"bad literal", []string{"find", "Customer", "--where", "customerNumber=abc"}, ExitFailure},
		{"bad child key", []string{"find", "Customer", "--child", "city=Berlin"}, ExitCommandError},
		{"bad changed-since", []string{"find", "Customer", "--changed-since", "yesterday"}, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.run(tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
		})
	}
}

func TestCLI_FindNoMatchText(t *testing.T) {
	s := newCLIStore(t, "sqlite")

	out, err := s.run("find", "Customer", "--where", "name=Nobody")
	require.NoError(t, err)
	assert.Equal(t, "No elements found.\n", out)
}

func TestCLI_Explain(t *testing.T) {
	s := newCLIStore(t, "sqlite")

	resp, err := s.runJSON("explain", "Customer", "--where", "customerNumber=>100", "--child", "addresses.city=Berlin", "--page-size", "10")
	require.NoError(t, err)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Customer", data["type"])
	assert.Equal(t, float64(10), data["limit"])
	assert.Contains(t, data["sql"], "SELECT")
	assert.NotEmpty(t, data["params"])
	assert.NotEmpty(t, data["criteria"])
	assert.NotEmpty(t, data["collection"])

	out, err := s.run("explain", "Customer", "--where", "name=Ann")
	require.NoError(t, err)
	assert.Contains(t, out, "sql:")
	assert.Contains(t, out, "document (")
}

func TestCLI_Schema(t *testing.T) {
	s := newCLIStore(t, "bolt")

	resp, err := s.runJSON("schema", "list")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"Address", "Customer"}, resp.Data)

	out, err := s.run("schema", "show", "Customer")
	require.NoError(t, err)
	assert.Contains(t, out, "Customer\n")
	assert.Contains(t, out, "  customerNumber integer\n")
	assert.Contains(t, out, "  addresses -> Address")

	_, err = s.run("schema", "show", "Order")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCLI_SchemaValidate(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantErr  bool
		wantText string
	}{
		{"valid", "testdata/customer.yaml", false, "✓ 2 element type(s) valid"},
		{"missing reference target", "testdata/invalid_schema.yaml", true, "SCHEMA_ERROR"},
		{"missing file", "testdata/none.yaml", true, "COMMAND_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCommand()
			buf := &bytes.Buffer{}
			cmd.SetOut(buf)
			cmd.SetErr(io.Discard)
			cmd.SetArgs([]string{"schema", "validate", tt.path})

			err := cmd.Execute()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Contains(t, buf.String(), tt.wantText)
		})
	}
}

func TestCLI_SaveInput(t *testing.T) {
	s := newCLIStore(t, "sqlite")

	_, err := s.run("save", "Customer")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp, err := s.runJSON("save", "Customer", "--data", `{"name":`)
	require.Error(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	resp, err = s.runJSON("save", "Customer", "--data", `{"customerNumber":"seven"}`)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCLI_Verify(t *testing.T) {
	s := newCLIStore(t, "sqlite")
	s.save("--data", `{"name":"Ann"}`)

	out, err := s.run("verify")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 1 element(s) consistent")

	bolt := newCLIStore(t, "bolt")
	_, err = bolt.run("verify")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
