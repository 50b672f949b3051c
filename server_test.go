package torero

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestServer(t *testing.T, socket bool) *Server {
	t.Helper()
	config := DefaultConfig()
	config.Root = testRoot(t)
	config.Log = filepath.Join(t.TempDir(), "torero.log")
	config.GracePeriod = 2 * time.Second
	if socket {
		config.Socket = filepath.Join(t.TempDir(), "admin.sock")
	}
	srv, err := New(config)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		if srv.Level() != HALT {
			srv.Runlevel(HALT)
		}
	})
	return srv
}

// get sends one raw request to the server's TCP port.
func get(t *testing.T, srv *Server, request string) response {
	t.Helper()
	addr := srv.Addr()
	require.NotNil(t, addr, "server is not listening")
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", addr.(*net.TCPAddr).Port))
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	_, err = conn.Write([]byte(request))
	require.NoError(t, err)
	b, err := io.ReadAll(conn)
	require.NoError(t, err)
	return parseResponse(t, string(b))
}

func TestServerFileRoundTrip(t *testing.T) {
	srv := createTestServer(t, false)
	assert.Equal(t, MULTIUSER, srv.Level())

	want, err := os.ReadFile(filepath.Join(srv.Config.Root, "a.txt"))
	require.NoError(t, err)
	r := get(t, srv, "GET /a.txt HTTP/1.1\r\n")
	assert.Equal(t, 200, r.status)
	assert.Equal(t, fmt.Sprint(len(want)), r.header["Content-Length"])
	assert.Equal(t, string(want), r.body)

	assert.Equal(t, 404, get(t, srv, "GET /missing.txt HTTP/1.1\r\n").status)
	assert.Equal(t, 400, get(t, srv, "POST /a.txt HTTP/1.1\r\n").status)
}

// More clients than workers plus queue slots: everyone gets an answer
// and every connection is counted once.
func TestServerManyClients(t *testing.T) {
	config := DefaultConfig()
	config.Root = testRoot(t)
	config.Log = filepath.Join(t.TempDir(), "torero.log")
	config.Workers = 2
	config.QueueSize = 2
	srv, err := New(config)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Runlevel(HALT)

	const clients = 40
	var wg sync.WaitGroup
	statuses := make(chan int, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses <- get(t, srv, "GET /list/x.txt HTTP/1.1\r\n").status
		}()
	}
	wg.Wait()
	close(statuses)
	for status := range statuses {
		assert.Equal(t, 200, status)
	}
	require.True(t, srv.pool.Drain(5*time.Second))
	assert.EqualValues(t, clients, srv.counters.Uint64(countTotal))
	assert.EqualValues(t, clients, srv.counters.Uint64("status 200"))
	assert.Equal(t, 0, srv.queue.Len())
}

func TestServerBadRunlevel(t *testing.T) {
	srv := createTestServer(t, false)
	err := srv.Runlevel(2)
	assert.True(t, errors.Is(err, ErrBadLevel))
	assert.Equal(t, MULTIUSER, srv.Level())
}

func TestServerRunlevels(t *testing.T) {
	srv := createTestServer(t, false)
	require.NoError(t, srv.Runlevel(SINGLEUSER))
	assert.Nil(t, srv.Addr())

	require.NoError(t, srv.Runlevel(MULTIUSER))
	require.NotNil(t, srv.Addr())
	assert.Equal(t, 200, get(t, srv, "GET /a.txt HTTP/1.1\r\n").status)

	require.NoError(t, srv.Runlevel(HALT))
	select {
	case <-srv.Done:
	case <-time.After(time.Second):
		t.Fatal("no message on Done")
	}
	assert.Error(t, srv.Runlevel(MULTIUSER), "restarted after halt")
}

func TestNewServerBadConfig(t *testing.T) {
	config := DefaultConfig()
	_, err := New(config) // no document root
	assert.ErrorIs(t, err, ErrConfig)
}

func TestAdminClient(t *testing.T) {
	srv := createTestServer(t, true)

	client, err := NewClient(srv.Config.Socket)
	require.NoError(t, err)
	client.Name = "test"
	reply, err := client.Hello()
	require.NoError(t, err)
	assert.Equal(t, "HELLO from Torero", reply)
	assert.Equal(t, "Torero", client.ServerName)

	assert.Equal(t, 200, get(t, srv, "GET /a.txt HTTP/1.1\r\n").status)
	status, err := client.Send("status")
	require.NoError(t, err)
	assert.Contains(t, status, "Current Runlevel: 3")
	assert.Contains(t, status, "Queue: 0/10")
	assert.Contains(t, status, "Responses 200: 1")

	reply, err = client.Send("runlevel", "1")
	require.NoError(t, err)
	assert.Equal(t, "level 1", reply)
	assert.Nil(t, srv.Addr())

	reply, err = client.Send("telinit 3")
	require.NoError(t, err)
	assert.Equal(t, "level 3", reply)
	assert.Equal(t, 200, get(t, srv, "GET /list HTTP/1.1\r\n").status)

	_, err = client.Send("runlevel", "2")
	assert.Error(t, err)
	_, err = client.Send("reboot")
	assert.Error(t, err)

	reply, err = client.Runlevel(HALT)
	require.NoError(t, err)
	assert.Equal(t, "level 0", reply)
	select {
	case msg := <-srv.Done:
		assert.Equal(t, "halted", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not halt")
	}
	_, err = os.Stat(srv.Config.Socket)
	assert.True(t, os.IsNotExist(err), "socket file left behind")
	_, err = client.Status()
	assert.Error(t, err)
}

func TestAdminSocketInUse(t *testing.T) {
	srv := createTestServer(t, true)
	config := srv.Config
	config.Port = 0
	second, err := New(config)
	require.NoError(t, err)
	err = second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), srv.Config.Socket)
}

func TestServerStartBusyPortRemovesSocket(t *testing.T) {
	busy, err := net.Listen("tcp4", ":0")
	require.NoError(t, err)
	defer busy.Close()

	config := DefaultConfig()
	config.Root = testRoot(t)
	config.Log = filepath.Join(t.TempDir(), "torero.log")
	config.Socket = filepath.Join(t.TempDir(), "admin.sock")
	config.Port = busy.Addr().(*net.TCPAddr).Port
	srv, err := New(config)
	require.NoError(t, err)
	err = srv.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind")
	_, err = os.Stat(config.Socket)
	assert.True(t, os.IsNotExist(err), "socket file left behind")

	// the next launch can use the same socket
	config.Port = 0
	next, err := New(config)
	require.NoError(t, err)
	require.NoError(t, next.Start())
	require.NoError(t, next.Runlevel(HALT))
}

// An accept loop stuck behind a full queue keeps runlevel 3 from starting
// a second one until it exits.
func TestServerMultiuserWaitsForBlockedAcceptor(t *testing.T) {
	config := DefaultConfig()
	config.Root = testRoot(t)
	config.Log = filepath.Join(t.TempDir(), "torero.log")
	config.Workers = 1
	config.QueueSize = 1
	config.GracePeriod = 200 * time.Millisecond
	srv, err := New(config)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		if srv.Level() != HALT {
			srv.Runlevel(HALT)
		}
	})

	// silent clients: the worker waits on the first, the second fills
	// the queue and the acceptor blocks submitting the third
	port := srv.Addr().(*net.TCPAddr).Port
	var clients []net.Conn
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		require.NoError(t, err)
		clients = append(clients, conn)
	}
	require.Eventually(t, func() bool {
		return srv.counters.Uint64(countTotal) == 3 && srv.queue.Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Runlevel(SINGLEUSER))
	assert.Nil(t, srv.Addr())
	assert.Error(t, srv.Runlevel(MULTIUSER))
	assert.Nil(t, srv.Addr())

	for _, c := range clients {
		c.Close()
	}
	require.Eventually(t, func() bool {
		return srv.Runlevel(MULTIUSER) == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 200, get(t, srv, "GET /a.txt HTTP/1.1\r\n").status)
}
