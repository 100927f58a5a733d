package transfer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/philsphicas/ftclient/internal/channel"
	"github.com/philsphicas/ftclient/internal/protocol"
)

// Phase is a step of the session state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseCommandConnected
	PhaseCommandSent
	PhaseStatusReceived
	PhaseDataListening
	PhaseDataAccepted
	PhaseDataReceived
	PhaseCompleted
	PhaseAborted
)

var phaseNames = [...]string{
	PhaseInit:             "init",
	PhaseCommandConnected: "command_connected",
	PhaseCommandSent:      "command_sent",
	PhaseStatusReceived:   "status_received",
	PhaseDataListening:    "data_listening",
	PhaseDataAccepted:     "data_accepted",
	PhaseDataReceived:     "data_received",
	PhaseCompleted:        "completed",
	PhaseAborted:          "aborted",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseAborted
}

var errTerminal = errors.New("session already finished")

// Session is the state of one run: the command it carries, the sockets it
// owns and the phases it has been through. A Session is used once.
type Session struct {
	ID      string
	Command protocol.Command

	phase   Phase
	history []Phase

	cmd  *channel.CommandConn
	data *channel.DataListener
}

func newSession(cmd protocol.Command) *Session {
	return &Session{
		ID:      uuid.New().String(),
		Command: cmd,
		phase:   PhaseInit,
		history: []Phase{PhaseInit},
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// History returns every phase the session has entered, in order.
func (s *Session) History() []Phase {
	out := make([]Phase, len(s.history))
	copy(out, s.history)
	return out
}

// advance moves the session forward. Phases never move backwards and
// nothing follows Completed or Aborted.
func (s *Session) advance(p Phase) error {
	if s.phase.Terminal() {
		return errTerminal
	}
	if p <= s.phase {
		return fmt.Errorf("invalid transition %s -> %s", s.phase, p)
	}
	s.phase = p
	s.history = append(s.history, p)
	return nil
}

// teardown closes every socket the session still holds. Each is closed
// exactly once no matter how often teardown runs.
func (s *Session) teardown() error {
	var errs []error
	if s.data != nil {
		if err := s.data.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close data channel: %w", err))
		}
	}
	if s.cmd != nil {
		if err := s.cmd.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close command channel: %w", err))
		}
	}
	return errors.Join(errs...)
}
