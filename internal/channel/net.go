package channel

import (
	"context"
	"fmt"
	"net"
	"time"
)

// defaultKeepAlive is the TCP keepalive period applied to both channels.
const defaultKeepAlive = 30 * time.Second

// SetTCPKeepAlive enables TCP keepalive on the connection if it is a
// *net.TCPConn and d > 0.
func SetTCPKeepAlive(conn net.Conn, d time.Duration) {
	if d <= 0 {
		return
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcpConn.SetKeepAlive(true)
	_ = tcpConn.SetKeepAlivePeriod(d)
}

// watchContext expires conn's deadline when ctx is done, which unblocks any
// pending Read or Write. The returned func stops the watch.
func watchContext(ctx context.Context, conn net.Conn) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
}

// contextErr attaches ctx's error to err when the failure was caused by
// cancellation, so callers can match context.Canceled or DeadlineExceeded.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
