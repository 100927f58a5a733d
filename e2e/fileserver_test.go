//go:build e2e

package e2e

import (
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/philsphicas/ftclient/internal/protocol"
)

// fileServer is a minimal server for the file transfer protocol that
// serves one directory. It handles one session per command connection.
type fileServer struct {
	ln  net.Listener
	dir string

	// broken names files whose contents are reported as a server error on
	// the data channel.
	broken map[string]bool

	mu       sync.Mutex
	commands []string
	wg       sync.WaitGroup
}

func startFileServer(t *testing.T, dir string) *fileServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("file server listen: %v", err)
	}
	fs := &fileServer{ln: ln, dir: dir, broken: map[string]bool{}}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return // listener closed
			}
			fs.wg.Add(1)
			go func() {
				defer fs.wg.Done()
				fs.serve(conn)
			}()
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		fs.wg.Wait()
	})
	return fs
}

func (fs *fileServer) port() int {
	return fs.ln.Addr().(*net.TCPAddr).Port
}

func (fs *fileServer) serve(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(20 * time.Second))

	payload, err := protocol.Receive(conn)
	if err != nil {
		return
	}
	fs.mu.Lock()
	fs.commands = append(fs.commands, string(payload))
	fs.mu.Unlock()

	fields := strings.Fields(string(payload))
	var data []byte
	switch {
	case len(fields) == 2 && fields[0] == "-l":
		data = []byte(fs.listing())
	case len(fields) == 3 && fields[0] == "-g":
		name := filepath.Base(fields[1])
		contents, err := os.ReadFile(filepath.Join(fs.dir, name))
		if err != nil {
			_ = protocol.WriteFrame(conn, []byte("FILE NOT FOUND"))
			return
		}
		data = contents
		if fs.broken[name] {
			data = []byte("ERROR: unable to read " + name)
		}
	default:
		_ = protocol.WriteFrame(conn, []byte("INVALID COMMAND"))
		return
	}

	if err := protocol.WriteFrame(conn, []byte(protocol.StatusOK)); err != nil {
		return
	}

	dataAddr := net.JoinHostPort("127.0.0.1", fields[len(fields)-1])
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		dc, err := net.DialTimeout("tcp", dataAddr, 200*time.Millisecond)
		if err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		_ = protocol.WriteFrame(dc, data)
		dc.Close()
		break
	}

	// Hold the command connection until the client closes it.
	var buf [1]byte
	_, _ = conn.Read(buf[:])
}

func (fs *fileServer) listing() string {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

func (fs *fileServer) received() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.commands...)
}
