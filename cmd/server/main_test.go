package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"weakgate/config"
)

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weakgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grpc:\n  addr: \":6000\"\n"), 0o644))

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--config", path})
	require.NoError(t, cmd.Execute())

	var got config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, ":6000", got.GRPC.Addr)
	assert.Equal(t, config.Default().Store, got.Store)
}

func TestConfigCommandRejectsMissingFile(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "--config", filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, cmd.Execute())
}
