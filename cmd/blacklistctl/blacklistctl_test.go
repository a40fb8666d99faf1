package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ipblacklist/internal/app/server"
	"ipblacklist/internal/auth"
	"ipblacklist/internal/blacklist"
	"ipblacklist/internal/database/dbtest"
	"ipblacklist/internal/support"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func newAPI(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(server.NewRouter(server.Dependencies{
		Registry:  blacklist.NewRegistry(dbtest.Open(t)),
		Validator: auth.NewValidator(auth.NewKeyStore(auth.NewCredential("acme", "s3cret"))),
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestAddGetListDelete(t *testing.T) {
	addr := newAPI(t)
	flags := []string{"--addr", addr, "--api-key", "acme:s3cret"}

	out, err := runCLI(t, append(flags, "add", "203.0.113.9")...)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "created 1\t203.0.113.9"), out)

	out, err = runCLI(t, append(flags, "add", "203.0.113.9")...)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "attributed "), out)

	out, err = runCLI(t, append(flags, "get", "203.0.113.9")...)
	require.NoError(t, err)
	require.Contains(t, out, "frequency=1")

	out, err = runCLI(t, append(flags, "list", "--by-frequency")...)
	require.NoError(t, err)
	require.Contains(t, out, "203.0.113.9")

	out, err = runCLI(t, append(flags, "sync")...)
	require.NoError(t, err)
	require.Contains(t, out, "token ")

	out, err = runCLI(t, append(flags, "delete", "1")...)
	require.NoError(t, err)
	require.Contains(t, out, "deleted 1")

	_, err = runCLI(t, append(flags, "get", "1")...)
	require.Error(t, err)
}

func TestCommandsRequireAPIKey(t *testing.T) {
	t.Setenv("IPBLACKLIST_API_KEY", "")
	_, err := runCLI(t, "--addr", "http://127.0.0.1:1", "list")
	require.Error(t, err)
}

func TestTokenCommandsWorkOffline(t *testing.T) {
	t.Setenv("IPBLACKLIST_API_KEY", "")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	out, err := runCLI(t, "token", "encode", at.Format(time.RFC3339))
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.Equal(t, support.EncodeSyncToken(at), token)

	out, err = runCLI(t, "token", "decode", token)
	require.NoError(t, err)
	require.Equal(t, at.Format(time.RFC3339Nano), strings.TrimSpace(out))

	_, err = runCLI(t, "token", "decode", "not-base64!!")
	require.Error(t, err)
}
