package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

func TestRun_SeedThenReport(t *testing.T) {
	t.Setenv("KPSMART_LOG_LEVEL", "error")
	db := "-db=" + filepath.Join(t.TempDir(), "kpsmart.db")

	out, err := runCLI(t, "-backend=sqlite", db, "seed", "nz-network")
	require.NoError(t, err)
	assert.Contains(t, out, "loaded nz-network: 19 events")

	out, err = runCLI(t, "-backend=sqlite", db, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "live of 19 events")
	assert.Contains(t, out, "77.00")
	assert.Contains(t, out, "Christchurch to Auckland")
	assert.Contains(t, out, "By route")
	assert.Contains(t, out, "Offset", "the by-route table prints stacking offsets")

	out, err = runCLI(t, "-backend=sqlite", db, "report", "-at", "6")
	require.NoError(t, err)
	assert.Contains(t, out, "event 6 of 19 events")
	assert.Contains(t, out, "no data")

	out, err = runCLI(t, "-backend=sqlite", db, "events", "-after", "18")
	require.NoError(t, err)
	assert.Contains(t, out, "mail_delivery")
}

func TestRun_Badger(t *testing.T) {
	t.Setenv("KPSMART_LOG_LEVEL", "error")
	dir := "-badger-dir=" + t.TempDir()

	_, err := runCLI(t, "-backend=badger", dir, "seed", "wellington-rome")
	require.NoError(t, err)

	out, err := runCLI(t, "-backend=badger", dir, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "52.00")
}

func TestRun_Errors(t *testing.T) {
	t.Setenv("KPSMART_LOG_LEVEL", "error")

	_, err := runCLI(t, "-backend=memory")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "-backend=memory", "fly")
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "-backend=postgres", "report")
	assert.ErrorContains(t, err, "unknown backend")

	_, err = runCLI(t, "-backend=memory", "report", "-at", "3")
	assert.ErrorContains(t, err, "dashboard at event 3")

	out, err := runCLI(t, "-backend=memory", "scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "wellington-rome")
}
