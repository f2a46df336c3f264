package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/negotiation.yaml")
	require.NoError(t, err)

	assert.Equal(t, "negotiation", s.Name)
	require.NotEmpty(t, s.Flow)
	assert.Equal(t, "alice", s.Flow[0].As)
	assert.Equal(t, "listing_post", s.Flow[0].Command["op"])
	require.NotNil(t, s.Flow[0].Expect)
	require.NotNil(t, s.Flow[0].Expect.OK)
	assert.True(t, *s.Flow[0].Expect.OK)
	assert.Equal(t, "LST-001", s.Flow[0].Expect.Key)
	assert.NotEmpty(t, s.Assertions)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nflow:\n  - as: a\n    command: {op: listing_list}\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nflow:\n  - as: a\n    command: {op: listing_list}\n",
			want: "description is required",
		},
		{
			name: "empty flow",
			yaml: "name: n\ndescription: d\n",
			want: "flow list is required",
		},
		{
			name: "step without peer",
			yaml: "name: n\ndescription: d\nflow:\n  - command: {op: listing_list}\n",
			want: "flow[0]: as is required",
		},
		{
			name: "step without op",
			yaml: "name: n\ndescription: d\nflow:\n  - as: a\n    command: {title: x}\n",
			want: "flow[0]: command.op is required",
		},
		{
			name: "unknown field",
			yaml: "name: n\ndescription: d\nflows: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nflow:\n  - as: a\n    command: {op: listing_list}\nassertions:\n  - type: vibes\n",
			want: "unknown assertion type",
		},
		{
			name: "trace_order needs two ops",
			yaml: "name: n\ndescription: d\nflow:\n  - as: a\n    command: {op: listing_list}\nassertions:\n  - type: trace_order\n    ops: [listing_post]\n",
			want: "at least 2 ops",
		},
		{
			name: "final_state needs expect",
			yaml: "name: n\ndescription: d\nflow:\n  - as: a\n    command: {op: listing_list}\nassertions:\n  - type: final_state\n    key: LST-001\n",
			want: "final_state requires expect",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", "sub/c.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	files, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "sub", "c.yaml"),
	}, files)

	files, err = FindScenarios(dir, "b*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml")}, files)
}
