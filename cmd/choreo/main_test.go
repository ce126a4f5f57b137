package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/choreo/pkg/domain"
)

const bookClub = `
name: Book Club
description: Members propose a book and the host approves it.
roles:
  Host:
    capabilities: [read, update, approve, reject]
    maxParticipants: 1
  Member:
    capabilities: [read, update]
slots:
  - name: title
    type: text
    required: true
    editable: [Member]
states:
  - name: Propose
    phase: collect
    requiredSlots: [title]
    transitions: Decide
  - name: Decide
    phase: negotiate
    transitions:
      approved: Done
      rejected: Propose
  - name: Done
    phase: confirm
`

// resetFlags puts every flag of the tree back to its default, since cobra
// keeps values between Execute calls on the same command.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) []byte {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), "choreo %v", args)
	return out.Bytes()
}

func TestCLI_RunLifecycle(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	file := filepath.Join(dir, "book_club.yaml")
	require.NoError(t, os.WriteFile(file, []byte(bookClub), 0o644))

	var tmpl domain.Template
	require.NoError(t, json.Unmarshal(execute(t, "compile", file, "--publish", "--db", db), &tmpl))
	assert.Equal(t, "Book Club", tmpl.Name)
	require.NotEmpty(t, tmpl.ID)

	var run domain.Run
	require.NoError(t, json.Unmarshal(execute(t, "start", tmpl.ID, "--db", db, "--json",
		"-p", "hal:host:Hal", "-p", "mia:member"), &run))
	assert.Equal(t, "propose", run.CurrentStateID)

	execute(t, "submit", run.ID, "--db", db, "--json", "--role", "member", "--slot", "title", "--value", "Dune")
	execute(t, "submit", run.ID, "--db", db, "--json", "--role", "host", "--event", "approved")

	var view struct {
		Run     domain.Run         `json:"run"`
		History []*domain.RunState `json:"history"`
		Slots   map[string]any     `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(execute(t, "inspect", run.ID, "--db", db, "--json", "--role", "host"), &view))
	assert.Equal(t, "done", view.Run.CurrentStateID)
	require.Len(t, view.History, 3)
	assert.Equal(t, "Dune", view.Slots["title"])

	chart := string(execute(t, "graph", "--run", run.ID, "--db", db))
	assert.Contains(t, chart, "class propose visited;")
	assert.Contains(t, chart, "class done current;")

	// A later submit must not inherit --slot/--value from the member's call.
	var out struct {
		Run domain.Run `json:"Run"`
	}
	require.NoError(t, json.Unmarshal(execute(t, "submit", run.ID, "--db", db, "--json", "--role", "host", "--event", "approved"), &out))
	assert.Equal(t, domain.RunCompleted, out.Run.Status)
}

func TestParseParticipants(t *testing.T) {
	got, err := parseParticipants([]string{"a:host", "b:member:Bea Smith"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Participant{{ID: "a", Role: "host"}, {ID: "b", Role: "member", Name: "Bea Smith"}}, got)

	_, err = parseParticipants([]string{"lonely"})
	assert.ErrorContains(t, err, "id:role")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, 42.0, parseValue("42"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, "plain words", parseValue("plain words"))
	assert.Equal(t, map[string]any{"a": 1.0}, parseValue(`{"a":1}`))
}
