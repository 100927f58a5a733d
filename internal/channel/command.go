// Package channel implements the two connections of a session: the command
// channel the client dials to negotiate an operation, and the data channel
// the client listens on so the server can connect back with the payload.
package channel

import (
	"context"
	"net"
	"sync"

	"github.com/philsphicas/ftclient/internal/protocol"
)

// CommandConn is an open command channel.
type CommandConn struct {
	conn    net.Conn
	decoder *protocol.FrameDecoder

	closeOnce sync.Once
	closeErr  error

	bytesSent     int64
	bytesReceived int64
}

// Dial opens the command channel to addr (host:port). There is no retry;
// a failure is terminal for the session and is returned as a
// *protocol.Error of KindConnect.
func Dial(ctx context.Context, addr string) (*CommandConn, error) {
	dialer := &net.Dialer{KeepAlive: defaultKeepAlive}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, protocol.Errorf(protocol.KindConnect, "connect to server", err)
	}
	return NewCommandConn(conn), nil
}

// NewCommandConn wraps an already established connection.
func NewCommandConn(conn net.Conn) *CommandConn {
	return &CommandConn{
		conn:    conn,
		decoder: protocol.NewFrameDecoder(conn),
	}
}

// SendCommand encodes the command payload and writes it as one frame.
func (c *CommandConn) SendCommand(ctx context.Context, cmd protocol.Command) error {
	stop := watchContext(ctx, c.conn)
	defer stop()

	frame := protocol.Encode([]byte(cmd.Payload()))
	n, err := c.conn.Write(frame)
	c.bytesSent += int64(n)
	if err != nil {
		return protocol.Errorf(protocol.KindSend, "send command", contextErr(ctx, err))
	}
	return nil
}

// ReceiveStatus reads the status frame. The returned string is either
// protocol.StatusOK or an error message from the server, unmodified.
func (c *CommandConn) ReceiveStatus(ctx context.Context) (string, error) {
	stop := watchContext(ctx, c.conn)
	defer stop()

	payload, err := c.decoder.ReadFrame()
	if err != nil {
		return "", protocol.Errorf(protocol.KindReceive, "receive status", contextErr(ctx, err))
	}
	c.bytesReceived += int64(protocol.FrameSize(len(payload)))
	return string(payload), nil
}

// BytesSent returns the number of bytes written to the command channel.
func (c *CommandConn) BytesSent() int64 { return c.bytesSent }

// BytesReceived returns the number of frame bytes read from the command channel.
func (c *CommandConn) BytesReceived() int64 { return c.bytesReceived }

// RemoteAddr returns the server's address.
func (c *CommandConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes the connection. It is safe to call more than once; the
// socket is closed exactly once.
func (c *CommandConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
