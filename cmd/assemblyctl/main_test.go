package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAssembly = `
call: first
members:
  - {id: A, name: Ana, weight: 400, attendance: present}
  - {id: B, name: Rui, weight: 300, attendance: represented, representative: Sofia}
  - {id: C, name: Eva, weight: 300, attendance: absent}
agenda:
  - {number: 1, title: Contas, kind: votable, majority: simple}
  - {number: 2, title: Fachada, kind: votable, majority: qualified}
  - {number: 3, title: Informações, kind: informative}
votes:
  1: {A: favor, B: against}
  2: {A: favor, B: favor}
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuorumCommand(t *testing.T) {
	out, err := execute(t, sampleAssembly, "quorum", "--lang", "en")
	require.NoError(t, err)
	assert.Contains(t, out, "Present:     1")
	assert.Contains(t, out, "Represented: 1")
	assert.Contains(t, out, "Quorum (first call): MET")

	out, err = execute(t, sampleAssembly, "quorum", "-o", "json", "--call", "second")
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 700.0, res["combined_weight"])
	assert.Equal(t, "second", res["call"])
	assert.Equal(t, true, res["met"])

	_, err = execute(t, sampleAssembly, "quorum", "--call", "third")
	assert.Error(t, err)
}

func TestQuorumCommand_NotMet(t *testing.T) {
	absent := strings.Replace(sampleAssembly, "attendance: represented", "attendance: absent", 1)
	out, err := execute(t, absent, "quorum", "--lang", "en")
	require.NoError(t, err)
	assert.Contains(t, out, "Quorum (first call): NOT MET")
}

func TestTallyCommand(t *testing.T) {
	out, err := execute(t, sampleAssembly, "tally", "--lang", "en")
	require.NoError(t, err)
	assert.Contains(t, out, "Item 1 (simple majority): PASSED")
	assert.Contains(t, out, "Item 2 (qualified majority): PASSED")
	assert.Contains(t, out, "(Ana)")
	assert.NotContains(t, out, "Item 3")

	out, err = execute(t, sampleAssembly, "tally", "-o", "json", "--item", "2")
	require.NoError(t, err)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, 700.0, recs[0]["favor_weight"])
	assert.Equal(t, 1000.0, recs[0]["total_building_weight"])

	_, err = execute(t, sampleAssembly, "tally", "--item", "3")
	assert.ErrorContains(t, err, "not votable")

	_, err = execute(t, sampleAssembly, "tally", "--item", "9")
	assert.ErrorContains(t, err, "not found")
}

func TestTallyCommand_Strict(t *testing.T) {
	partial := strings.Replace(sampleAssembly, "2: {A: favor, B: favor}", "2: {A: favor}", 1)

	out, err := execute(t, partial, "tally", "--lang", "en")
	require.NoError(t, err)
	assert.Contains(t, out, "Item 2 (qualified majority): REJECTED")

	_, err = execute(t, partial, "tally", "--strict")
	assert.ErrorContains(t, err, "item 2 by B")
}

func TestWorkflowsCommands(t *testing.T) {
	out, err := execute(t, "", "workflows", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "assembly-minutes")
	assert.Contains(t, out, "assembly-convocation")

	defs := filepath.Join("..", "..", "definitions")
	out, err = execute(t, "", "workflows", "list", "--dir", defs)
	require.NoError(t, err)
	assert.Contains(t, out, "budget-approval")

	out, err = execute(t, "", "workflows", "validate", defs)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	out, err = execute(t, "", "workflows", "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Contains(t, out, "FAIL")
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, sampleAssembly, "quorum", "-o", "xml")
	assert.ErrorContains(t, err, "xml")
}
