// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func listenLocal(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func startManager(t *testing.T, mgr Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	return cancel, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
		return nil
	}
}

func TestNewManager_MissingHandler(t *testing.T) {
	_, err := NewManager(ServerConfig{}, Deps{})
	require.ErrorIs(t, err, ErrMissingHandler)
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	mgr, err := NewManager(ServerConfig{}, Deps{Handler: http.NotFoundHandler()})
	require.NoError(t, err)
	require.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_ServesUntilCancelledAndRunsHooksLIFO(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln := listenLocal(t)
	mgr, err := NewManager(ServerConfig{ShutdownTimeout: 2 * time.Second}, Deps{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Listener: ln,
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"store", "telemetry", "link"} {
		mgr.RegisterShutdownHook(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	cancel, done := startManager(t, mgr)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	cancel()
	require.NoError(t, waitDone(t, done))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"link", "telemetry", "store"}, order)
}

func TestManager_StartTwice(t *testing.T) {
	ln := listenLocal(t)
	mgr, err := NewManager(ServerConfig{}, Deps{Handler: http.NotFoundHandler(), Listener: ln})
	require.NoError(t, err)

	cancel, done := startManager(t, mgr)
	defer func() {
		cancel()
		_ = waitDone(t, done)
	}()

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", ln.Addr().String(), 50*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.ErrorIs(t, mgr.Start(context.Background()), ErrManagerStarted)
}

func TestManager_HookErrorsAreReported(t *testing.T) {
	ln := listenLocal(t)
	mgr, err := NewManager(ServerConfig{}, Deps{Handler: http.NotFoundHandler(), Listener: ln})
	require.NoError(t, err)

	mgr.RegisterShutdownHook("store", func(context.Context) error { return errors.New("close failed") })
	ran := false
	mgr.RegisterShutdownHook("telemetry", func(context.Context) error {
		ran = true
		return nil
	})

	cancel, done := startManager(t, mgr)
	cancel()
	err = waitDone(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook store")
	assert.True(t, ran, "later hooks still run after a failure")
}

func TestManager_ShutdownEndsHijackedConnections(t *testing.T) {
	ln := listenLocal(t)
	entered := make(chan struct{})
	observed := make(chan struct{})
	mgr, err := NewManager(ServerConfig{ShutdownTimeout: 2 * time.Second}, Deps{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, _, err := http.NewResponseController(w).Hijack()
			if err != nil {
				return
			}
			defer conn.Close()
			close(entered)
			<-r.Context().Done()
			close(observed)
		}),
		Listener: ln,
	})
	require.NoError(t, err)

	cancel, done := startManager(t, mgr)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = fmt.Fprintf(conn, "GET / HTTP/1.1\r\nHost: %s\r\n\r\n", ln.Addr().String())
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not reached")
	}

	cancel()
	select {
	case <-observed:
	case <-time.After(3 * time.Second):
		t.Fatal("hijacked connection did not observe shutdown")
	}
	require.NoError(t, waitDone(t, done))

	// The handler closed the hijacked connection.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = bufio.NewReader(conn).ReadByte()
	require.Error(t, err)
}
