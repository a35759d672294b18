package httpserver

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServer_ServeAndStop(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	s := NewServer("test", "127.0.0.1:0", handler, zap.NewNop())

	ln, err := s.Listen()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, "pong", string(body))

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, <-done)
}

func TestServer_ListenPortInUse(t *testing.T) {
	a := NewServer("a", "127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	ln, err := a.Listen()
	require.NoError(t, err)
	defer ln.Close()

	b := NewServer("b", ln.Addr().String(), http.NotFoundHandler(), zap.NewNop())
	_, err = b.Listen()
	require.Error(t, err)
}
