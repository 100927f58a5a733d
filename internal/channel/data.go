package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/philsphicas/ftclient/internal/protocol"
)

// State is the lifecycle phase of a DataListener. Transitions only move
// forward and each happens at most once.
type State int

const (
	StateUnopened State = iota
	StateListening
	StateAccepted
	StateReceived
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateListening:
		return "listening"
	case StateAccepted:
		return "accepted"
	case StateReceived:
		return "received"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrAlreadyAccepted is returned by AcceptOnce after the single data
	// connection has been accepted.
	ErrAlreadyAccepted = errors.New("data connection already accepted")
	errNotAccepted     = errors.New("data connection not accepted")
	errListenerClosed  = errors.New("data listener closed")
)

// DataListener is the client side of the data channel. The server connects
// to it; the client never dials out for data.
type DataListener struct {
	ln    net.Listener
	conn  net.Conn
	state State

	lnOnce     sync.Once
	lnErr      error
	connClosed bool

	bytesReceived int64
}

// Listen binds the data port on bindHost ("" means all interfaces).
// A failure, such as the port already being in use, is returned as a
// *protocol.Error of KindBind.
func Listen(ctx context.Context, bindHost string, port int) (*DataListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(bindHost, strconv.Itoa(port)))
	if err != nil {
		return nil, protocol.Errorf(protocol.KindBind, fmt.Sprintf("listen on data port %d", port), err)
	}
	return &DataListener{ln: ln, state: StateListening}, nil
}

// Addr returns the listening address.
func (l *DataListener) Addr() net.Addr { return l.ln.Addr() }

// State returns the current lifecycle state.
func (l *DataListener) State() State { return l.state }

// AcceptOnce blocks until the server connects. The listening socket is
// closed as soon as one connection has arrived, so no second connection is
// ever queued or served.
func (l *DataListener) AcceptOnce(ctx context.Context) (net.Conn, error) {
	switch l.state {
	case StateListening:
	case StateAccepted, StateReceived:
		return nil, ErrAlreadyAccepted
	default:
		return nil, errListenerClosed
	}

	stop := context.AfterFunc(ctx, func() { _ = l.closeListener() })
	conn, err := l.ln.Accept()
	stop()
	_ = l.closeListener()
	if err != nil {
		_ = l.Close()
		return nil, protocol.Errorf(protocol.KindReceive, "accept data connection", contextErr(ctx, err))
	}

	SetTCPKeepAlive(conn, defaultKeepAlive)
	l.conn = conn
	l.state = StateAccepted
	return conn, nil
}

// Receive reads the single data frame from the accepted connection. Any
// failure closes the listener and returns a *protocol.Error of KindReceive.
func (l *DataListener) Receive(ctx context.Context) ([]byte, error) {
	if l.state != StateAccepted {
		return nil, protocol.Errorf(protocol.KindReceive, "receive data", errNotAccepted)
	}

	stop := watchContext(ctx, l.conn)
	payload, err := protocol.Receive(l.conn)
	stop()
	if err != nil {
		_ = l.Close()
		return nil, protocol.Errorf(protocol.KindReceive, "receive data", contextErr(ctx, err))
	}
	l.bytesReceived = int64(protocol.FrameSize(len(payload)))
	l.state = StateReceived
	return payload, nil
}

// BytesReceived returns the size of the received data frame.
func (l *DataListener) BytesReceived() int64 { return l.bytesReceived }

// Close releases the listening socket and the accepted connection, each
// exactly once. It is safe to call in any state.
func (l *DataListener) Close() error {
	var errs []error
	if err := l.closeListener(); err != nil {
		errs = append(errs, err)
	}
	if l.conn != nil && !l.connClosed {
		l.connClosed = true
		if err := l.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.state = StateClosed
	return errors.Join(errs...)
}

// closeListener may run on the context watcher's goroutine.
func (l *DataListener) closeListener() error {
	l.lnOnce.Do(func() {
		l.lnErr = l.ln.Close()
	})
	return l.lnErr
}
