package transfer

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/philsphicas/ftclient/internal/protocol"
)

// testServer speaks the server side of the protocol over loopback: it
// reads one command, replies with status and, when data is set, connects
// back to the client's data port and sends it.
type testServer struct {
	Port int

	// Commands receives every command payload the server reads.
	Commands chan string
	// CommandClosed is closed once the client has closed the command
	// connection.
	CommandClosed chan struct{}

	ln   net.Listener
	done chan struct{}
}

type serverBehavior struct {
	status string
	// data is sent framed on the data channel. Ignored when raw is set.
	data []byte
	// raw is written to the data channel as-is, then the connection closes.
	raw []byte
	// connect controls whether the server dials the data port at all.
	connect bool
	// closeWait bounds how long the server waits for the client to close
	// the command connection. Defaults to commandCloseWait.
	closeWait time.Duration
}

// commandCloseWait is longer than waitClosed's timeout, so a leaked
// command connection fails the test instead of timing out into success.
const commandCloseWait = 10 * time.Second

func startServer(t *testing.T, b serverBehavior) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &testServer{
		Port:          ln.Addr().(*net.TCPAddr).Port,
		Commands:      make(chan string, 1),
		CommandClosed: make(chan struct{}),
		ln:            ln,
		done:          make(chan struct{}),
	}
	go s.serve(b)
	t.Cleanup(func() {
		ln.Close()
		select {
		case <-s.done:
		case <-time.After(commandCloseWait + 5*time.Second):
			t.Error("test server did not exit")
		}
	})
	return s
}

func (s *testServer) serve(b serverBehavior) {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	payload, err := protocol.Receive(conn)
	if err != nil {
		return
	}
	s.Commands <- string(payload)

	if err := protocol.WriteFrame(conn, []byte(b.status)); err != nil {
		return
	}

	if b.connect {
		fields := strings.Fields(string(payload))
		port := fields[len(fields)-1]
		if dc := dialRetry(net.JoinHostPort("127.0.0.1", port)); dc != nil {
			if b.raw != nil {
				_, _ = dc.Write(b.raw)
			} else {
				_ = protocol.WriteFrame(dc, b.data)
			}
			dc.Close()
		}
	}

	wait := b.closeWait
	if wait == 0 {
		wait = commandCloseWait
	}
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	var buf [1]byte
	_, err = conn.Read(buf[:])
	var ne net.Error
	if err != nil && !(errors.As(err, &ne) && ne.Timeout()) {
		close(s.CommandClosed)
	}
}

// dialRetry dials addr until the client's data listener is up. The client
// only starts listening after it has read the status reply.
func dialRetry(addr string) net.Conn {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// freePort returns a loopback port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func hostPort(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}
