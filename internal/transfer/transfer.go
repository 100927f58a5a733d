// Package transfer runs one file-transfer session: it negotiates an
// operation over the command channel, receives the payload on the data
// channel, and routes it to the terminal or to a local file.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/philsphicas/ftclient/internal/channel"
	"github.com/philsphicas/ftclient/internal/metrics"
	"github.com/philsphicas/ftclient/internal/protocol"
)

// Config holds the inputs of a session.
type Config struct {
	Command   protocol.Command
	FS        Filesystem // default: the OS filesystem
	Confirmer Confirmer  // asked before an existing file is replaced
	Stdout    io.Writer  // default: os.Stdout
	Stderr    io.Writer  // default: os.Stderr
	BindHost  string     // data listener address; empty means all interfaces
	OutputDir string     // directory received files are written to
	Overwrite bool       // replace existing files without asking
	Logger    *slog.Logger
	Metrics   *metrics.Metrics // optional; nil disables metrics
}

// Run executes one session and returns its terminal error, if any. Every
// error is a *protocol.Error; a user-facing message has already been
// written to Stderr by the time Run returns.
func Run(ctx context.Context, cfg Config) error {
	_, err := Execute(ctx, cfg)
	return err
}

// Execute is Run but also returns the finished session.
func Execute(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FS == nil {
		cfg.FS = NewOsFS()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	s := newSession(cfg.Command)
	r := &runner{
		cfg:    cfg,
		s:      s,
		logger: cfg.Logger.With("session", s.ID, "op", cfg.Command.Op.String()),
	}

	tracker := cfg.Metrics.SessionStarted(cfg.Command.Op.String())
	start := time.Now()

	status, err := r.run(ctx)
	if cerr := s.teardown(); cerr != nil {
		r.logger.Debug("teardown", "error", cerr)
	}

	kind := ""
	if err != nil {
		status = metrics.StatusError
		kind = metrics.ErrorKind(err, protocol.KindOf(err).String())
		_ = s.advance(PhaseAborted)
		r.logger.Debug("session aborted", "error", err)
	} else {
		_ = s.advance(PhaseCompleted)
		r.logger.Debug("session completed", "outcome", status)
	}
	tracker.Done(time.Since(start).Seconds(), status, kind)

	return s, err
}

type runner struct {
	cfg    Config
	s      *Session
	logger *slog.Logger
}

func (r *runner) stderrf(format string, args ...any) {
	fmt.Fprintf(r.cfg.Stderr, format+"\n", args...)
}

func (r *runner) stdoutf(format string, args ...any) {
	fmt.Fprintf(r.cfg.Stdout, format+"\n", args...)
}

func (r *runner) run(ctx context.Context) (string, error) {
	cmd := r.cfg.Command
	m := r.cfg.Metrics

	r.logger.Debug("connecting", "addr", cmd.CommandAddr())
	dialStart := time.Now()
	cc, err := channel.Dial(ctx, cmd.CommandAddr())
	m.ObserveDialDuration(time.Since(dialStart).Seconds())
	if err != nil {
		r.stderrf("ERROR: unable to connect to server on port %d", cmd.CommandPort)
		return "", err
	}
	r.s.cmd = cc
	_ = r.s.advance(PhaseCommandConnected)
	r.logger.Debug("connected", "remote", cc.RemoteAddr().String())

	err = cc.SendCommand(ctx, cmd)
	m.AddBytes(metrics.ChannelCommand, metrics.DirectionSent, cc.BytesSent())
	if err != nil {
		r.stderrf("ERROR: unable to send command to server on port %d", cmd.CommandPort)
		return "", err
	}
	_ = r.s.advance(PhaseCommandSent)
	r.logger.Debug("command sent", "payload", cmd.Payload())

	status, err := cc.ReceiveStatus(ctx)
	m.AddBytes(metrics.ChannelCommand, metrics.DirectionReceived, cc.BytesReceived())
	if err != nil {
		r.stderrf("ERROR: unable to receive from server on port %d", cmd.CommandPort)
		return "", err
	}
	_ = r.s.advance(PhaseStatusReceived)

	if status != protocol.StatusOK {
		r.stderrf("%s says '%s'", cmd.CommandAddr(), status)
		return "", protocol.Errorf(protocol.KindRejected, "command rejected", errors.New(status))
	}

	data, err := channel.Listen(ctx, r.cfg.BindHost, cmd.DataPort)
	if err != nil {
		r.stderrf("ERROR: unable to create data socket on port %d", cmd.DataPort)
		return "", err
	}
	r.s.data = data
	_ = r.s.advance(PhaseDataListening)
	r.logger.Debug("data listener open", "addr", data.Addr().String())

	if _, err := data.AcceptOnce(ctx); err != nil {
		r.stderrf("ERROR: connection with server has been broken")
		return "", err
	}
	_ = r.s.advance(PhaseDataAccepted)

	switch cmd.Op {
	case protocol.ListDirectory:
		r.stdoutf("Receiving directory structure from %s", cmd.DataAddr())
	case protocol.GetFile:
		r.stdoutf("Receiving %q from %s", cmd.Filename, cmd.DataAddr())
	}

	payload, err := data.Receive(ctx)
	m.AddBytes(metrics.ChannelData, metrics.DirectionReceived, data.BytesReceived())
	if err != nil {
		r.stderrf("ERROR: connection with server has been broken")
		return "", err
	}
	_ = r.s.advance(PhaseDataReceived)
	m.SetPayloadBytes(cmd.Op.String(), len(payload))
	r.logger.Debug("data received", "bytes", len(payload))

	if protocol.IsApplicationError(payload) {
		r.stderrf("%s", payload)
		return "", protocol.Errorf(protocol.KindApplication, "server error", errors.New(string(payload)))
	}

	if cmd.Op == protocol.ListDirectory {
		r.stdoutf("%s", payload)
		return metrics.StatusSuccess, nil
	}
	return r.store(payload)
}

// store writes a received file, asking before replacing an existing one.
// The confirmer is asked about the filename as requested, not the local
// path. A declined overwrite is a successful session that leaves the file
// alone.
func (r *runner) store(payload []byte) (string, error) {
	name := r.cfg.Command.Filename
	path := localPath(r.cfg.OutputDir, name)

	exists, err := r.cfg.FS.Exists(path)
	if err != nil {
		r.stderrf("ERROR: unable to access %q", path)
		return "", protocol.Errorf(protocol.KindWrite, "stat local file", err)
	}
	if exists && !r.cfg.Overwrite {
		if r.cfg.Confirmer == nil {
			r.stderrf("ERROR: %q already exists", path)
			return "", protocol.Errorf(protocol.KindWrite, "confirm overwrite", errNoConfirmer)
		}
		ok, err := r.cfg.Confirmer.ConfirmOverwrite(name)
		if err != nil {
			r.stderrf("ERROR: unable to confirm replacing %q", path)
			return "", protocol.Errorf(protocol.KindWrite, "confirm overwrite", err)
		}
		if !ok {
			r.logger.Info("overwrite declined, file left unchanged", "path", path)
			return metrics.StatusDeclined, nil
		}
	}

	if err := r.cfg.FS.WriteFile(path, payload); err != nil {
		r.stderrf("ERROR: unable to write %q", path)
		return "", protocol.Errorf(protocol.KindWrite, "write local file", err)
	}
	r.logger.Debug("file written", "path", path, "bytes", len(payload))
	r.stdoutf("File transfer complete")
	return metrics.StatusSuccess, nil
}
