package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kvpbridge/internal/config"
	"github.com/banshee-data/kvpbridge/internal/monitoring"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kvpbridge dev")
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join("..", "..", config.DefaultConfigPath)
	out, err := execute(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok: 6 joints, $AXIS_ACT -> MYAXIS at sim://localhost, 83.3 Hz")
}

func TestValidateCommand_Dev(t *testing.T) {
	out, err := execute(t, "validate", "--dev")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "config ok: 6 joints"))
}

func TestValidateCommand_RequiresConfig(t *testing.T) {
	_, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--config is required")
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("robot:\n  address: sim://x\njoints: []\n"), 0644))
	_, err := execute(t, "validate", "--config", path)
	assert.Error(t, err)
}

func TestBridge_SimulatorRoundTrip(t *testing.T) {
	b, err := newBridge(config.Dev())
	require.NoError(t, err)
	require.NoError(t, b.hw.Connect(context.Background()))
	t.Cleanup(func() { _ = b.hw.Disconnect() })

	require.NoError(t, b.loop.Step())
	require.NoError(t, b.loop.Stage(map[string]float64{"joint_a3": 0.5}))
	for i := 0; i < 3; i++ {
		require.NoError(t, b.loop.Step())
	}

	written, ok := b.sim.Get("MYAXIS")
	require.True(t, ok)
	assert.Contains(t, written, "A3 28.647890")

	state, _, ok := b.loop.Latest()
	require.True(t, ok)
	assert.InDelta(t, 0.5, state.Position[2], 1e-6)
	assert.Equal(t, 4, len(b.pub.C()), "one status per cycle")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := config.Dev()
	httpAddr, grpcAddr := "127.0.0.1:0", "127.0.0.1:0"
	cfg.HTTP.Listen = &httpAddr
	cfg.GRPC.Listen = &grpcAddr

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	cfg := config.Dev()
	cfg.Robot.Address = "kvp://10.0.0.1:7000"
	httpAddr := "127.0.0.1:0"
	cfg.HTTP.Listen = &httpAddr

	err := run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect read side")
}
