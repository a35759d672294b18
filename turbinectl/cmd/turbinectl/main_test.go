package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStub(t *testing.T, bodies *[]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok","service":"turbine-bridge","connectedClients":0,"latestData":null,"brokerConnected":false}`)
	})
	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*bodies = append(*bodies, string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"command":`+string(body)+`}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Health(t *testing.T) {
	var bodies []string
	srv := newStub(t, &bodies)
	var out, errOut bytes.Buffer

	code := run([]string{"-addr", srv.URL, "health"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "ok", got["status"])
}

func TestRun_PowerAndSend(t *testing.T) {
	var bodies []string
	srv := newStub(t, &bodies)
	var out, errOut bytes.Buffer

	require.Equal(t, 0, run([]string{"-addr", srv.URL, "power", "off"}, &out, &errOut))
	require.Equal(t, 0, run([]string{"-addr", srv.URL, "send", "calibrate", `{"pitch":3}`}, &out, &errOut))

	require.Len(t, bodies, 2)
	require.JSONEq(t, `{"action":"power","value":false}`, bodies[0])
	require.JSONEq(t, `{"action":"calibrate","value":{"pitch":3}}`, bodies[1])
}

func TestRun_UsageErrors(t *testing.T) {
	var out, errOut bytes.Buffer

	require.Equal(t, 2, run(nil, &out, &errOut))
	require.Equal(t, 1, run([]string{"-addr", "http://127.0.0.1:1", "power", "sideways"}, &out, &errOut))
	require.Equal(t, 1, run([]string{"-addr", "http://127.0.0.1:1", "send", "x", "{bad"}, &out, &errOut))
	require.Equal(t, 1, run([]string{"-addr", "http://127.0.0.1:1", "reboot"}, &out, &errOut))
	require.Contains(t, errOut.String(), "unknown command")
}
