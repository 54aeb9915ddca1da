package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	work "github.com/nanowork/nano-work-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRoot = "718CC2121C3E641059BC1C2CFC45666C99E8AE922F7A807B7D07B62C995D79E2"
	testWork = "2bf29ef00786a6bc"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestLoadConfig(t *testing.T) {
	conf, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), conf)

	path := writeConfig(t, `
policy: v1
cache: 16
cpu:
  threads: 2
remote:
  enabled: true
  url: https://dpow.nanocenter.org/service/
  user: user
  api_key: key
`)
	conf, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", conf.Policy)
	assert.Equal(t, 16, conf.Cache)
	assert.True(t, conf.CPU.Enabled, "defaults are kept")
	assert.Equal(t, int32(2), conf.CPU.Threads)
	assert.True(t, conf.Remote.Enabled)
	assert.Equal(t, "key", conf.Remote.APIKey)
	assert.Equal(t, "http://127.0.0.1:7076", conf.Node.RPC)

	_, err = LoadConfig(writeConfig(t, "policy: v3\n"))
	assert.Error(t, err)
	_, err = LoadConfig(writeConfig(t, "cpu:\n  enabled: false\n"))
	assert.Error(t, err)
	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseSubtype(t *testing.T) {
	for _, name := range []string{"send", "receive", "open", "change", "epoch"} {
		st, err := parseSubtype(name)
		require.NoError(t, err)
		assert.Equal(t, name, st.String())
	}
	_, err := parseSubtype("state")
	assert.Error(t, err)
}

func TestVerifyCommand(t *testing.T) {
	out, err := execute(t, "verify", testRoot, testWork, "--difficulty", "ffffffc000000000")
	require.NoError(t, err)
	assert.Contains(t, out, "ffffffd21c3933f4")
	assert.Contains(t, out, "Valid      : true")

	out, err = execute(t, "verify", testRoot, testWork, "--difficulty", "", "--subtype", "send")
	assert.ErrorIs(t, err, work.ErrInvalidSolution)
	assert.Contains(t, out, "Valid      : false")

	_, err = execute(t, "verify", "abcd", testWork)
	assert.Error(t, err)
}

func TestGenerateCommand(t *testing.T) {
	path := writeConfig(t, "cache: 4\ncpu:\n  threads: 2\n")
	out, err := execute(t, "generate", testRoot, "--config", path, "--difficulty", "f000000000000000")
	require.NoError(t, err)

	solution, err := work.ParseSolution(strings.TrimSpace(strings.Split(out, "\n")[0]))
	require.NoError(t, err)
	root, err := work.ParseRoot(testRoot)
	require.NoError(t, err)
	assert.True(t, work.Difficulty(0xf000000000000000).Satisfies(root, solution))
}
