package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func writeConfig(t *testing.T, listen string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`app_name: netz-test
log:
  level: debug
  outputs: [%q]
transport:
  kind: tcp
  listen: %q
`, filepath.Join(dir, "netz.log"), listen)
	path := filepath.Join(dir, "netz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestServeAndSend(t *testing.T) {
	listen := freeAddr(t)
	cfgPath := writeConfig(t, listen)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		cmd := newRootCmd()
		cmd.SetArgs([]string{"serve", "--config", cfgPath})
		served <- cmd.ExecuteContext(ctx)
	}()

	var out bytes.Buffer
	require.Eventually(t, func() bool {
		out.Reset()
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"send", "--config", cfgPath, "--count", "2", "--body", "hi"})
		return cmd.ExecuteContext(context.Background()) == nil
	}, 10*time.Second, 50*time.Millisecond)

	require.Equal(t, "greeting from netz-test\necho #1 from netz-test: hi\necho #2 from netz-test: hi\n", out.String())

	cancel()
	require.NoError(t, <-served)
}

func TestSendRejectsZeroCount(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"send", "--count", "0"})
	require.ErrorContains(t, cmd.Execute(), "--count must be at least 1")
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  kind: carrier-pigeon\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--config", path})
	require.ErrorContains(t, cmd.Execute(), "invalid transport.kind")
}
