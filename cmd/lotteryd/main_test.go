package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig points the commands at an in-memory configuration.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\nscheduler:\n  enabled: false\n"), 0o600))
	return path
}

func TestRunRequiresCommand(t *testing.T) {
	err := run(context.Background(), nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)

	err = run(context.Background(), []string{"launch"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)
}

func TestRunVersionAndCompletion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, &out))
	assert.Equal(t, "lotteryd dev\n", out.String())

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"completion", "zsh"}, &out))
	assert.Contains(t, out.String(), "#compdef lotteryd")

	assert.ErrorIs(t, run(context.Background(), []string{"completion"}, &out), errUsage)
}

func TestImportValidatesFlags(t *testing.T) {
	err := run(context.Background(), []string{"import", "-lottery", "BOG"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)

	err = run(context.Background(), []string{"import", "-lottery", "BOG", "-file", "x.csv", "-layout", "odd"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown combination layout")
}

func TestImportUnknownLottery(t *testing.T) {
	csv := filepath.Join(t.TempDir(), "combos.csv")
	require.NoError(t, os.WriteFile(csv, []byte("0042,001\n"), 0o600))
	err := run(context.Background(), []string{"import", "-config", writeConfig(t), "-lottery", "NOPE", "-file", csv}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lottery NOPE")
}

func TestResultValidatesFlags(t *testing.T) {
	err := run(context.Background(), []string{"result", "-lottery", "BOG", "-number", "1234"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)

	err = run(context.Background(), []string{"result", "-lottery", "BOG", "-draw-date", "23/10/2026", "-number", "1234"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)
}

func TestSecoFlags(t *testing.T) {
	var s secoFlags
	require.NoError(t, s.Set("1234-001"))
	require.NoError(t, s.Set("5678"))
	assert.Error(t, s.Set("-001"))
	require.Len(t, s, 2)
	assert.Equal(t, "001", s[0].Series)
	assert.Equal(t, "", s[1].Series)
	assert.Equal(t, "1234-001,5678-", s.String())

	drawDate := time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)
	res := s.result("lot-1", drawDate, "4321", "007")
	assert.Equal(t, "lot-1", res.LotteryID)
	assert.True(t, res.DrawDate.Equal(drawDate))
	require.Len(t, res.Secos, 2)
	assert.Equal(t, "1234", res.Secos[0].Number)
	assert.Equal(t, "001", res.Secos[0].Series)
}

func TestRollWithMemoryStore(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"roll", "-config", writeConfig(t)}, &out))
	assert.Contains(t, out.String(), "0 lotteries moved")
}
