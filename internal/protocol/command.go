// Package protocol defines the wire format for the ftclient file transfer
// protocol.
//
// Every message on either channel is a frame: the payload's byte length in
// decimal ASCII, a '$' delimiter, then exactly that many payload bytes. The
// client sends one command frame on the command channel and reads one
// status frame back. If the status is "OK" the server connects back to the
// client's data port and sends one data frame.
package protocol

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// StatusOK is the status payload that lets a session proceed to the data
// channel. Any other status is an error message from the server.
const StatusOK = "OK"

// ApplicationErrorPrefix marks a data payload that reports a server-side
// failure instead of carrying a listing or file.
const ApplicationErrorPrefix = "ERROR"

// Operation is the kind of request sent on the command channel.
type Operation int

const (
	// ListDirectory requests the server's directory listing.
	ListDirectory Operation = iota + 1
	// GetFile requests the contents of a single file.
	GetFile
)

// Flag returns the op code sent on the wire ("-l" or "-g").
func (op Operation) Flag() string {
	switch op {
	case ListDirectory:
		return "-l"
	case GetFile:
		return "-g"
	default:
		return ""
	}
}

func (op Operation) String() string {
	switch op {
	case ListDirectory:
		return "list"
	case GetFile:
		return "get"
	default:
		return "unknown"
	}
}

var (
	errMissingHost     = errors.New("host is required")
	errSamePorts       = errors.New("server port and data port numbers must be different")
	errMissingFilename = errors.New("filename is required for get")
	errUnexpectedFile  = errors.New("filename is only valid for get")
	errFilenameSpace   = errors.New("filename must not contain whitespace")
	errUnknownOp       = errors.New("invalid command")
)

// Command describes one requested operation. It is built once by
// NewCommand and passed by value afterwards.
type Command struct {
	Op          Operation
	Host        string
	CommandPort int
	DataPort    int
	Filename    string // GetFile only
}

// NewCommand validates its inputs and returns the Command. All validation
// failures are *Error values of KindArgument.
func NewCommand(op Operation, host string, commandPort, dataPort int, filename string) (Command, error) {
	cmd := Command{
		Op:          op,
		Host:        strings.TrimSpace(host),
		CommandPort: commandPort,
		DataPort:    dataPort,
		Filename:    filename,
	}
	if err := cmd.validate(); err != nil {
		return Command{}, Errorf(KindArgument, "validate command", err)
	}
	return cmd, nil
}

func (c Command) validate() error {
	if c.Host == "" {
		return errMissingHost
	}
	if err := validPort("server", c.CommandPort); err != nil {
		return err
	}
	if err := validPort("data", c.DataPort); err != nil {
		return err
	}
	if c.CommandPort == c.DataPort {
		return errSamePorts
	}
	switch c.Op {
	case ListDirectory:
		if c.Filename != "" {
			return errUnexpectedFile
		}
	case GetFile:
		if c.Filename == "" {
			return errMissingFilename
		}
		if strings.ContainsAny(c.Filename, " \t\r\n") {
			return errFilenameSpace
		}
	default:
		return errUnknownOp
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid %s port number %d: must be 1-65535", name, port)
	}
	return nil
}

// Payload returns the command text sent on the command channel:
// "-l <dataPort>" or "-g <filename> <dataPort>".
func (c Command) Payload() string {
	dp := strconv.Itoa(c.DataPort)
	if c.Op == GetFile {
		return c.Op.Flag() + " " + c.Filename + " " + dp
	}
	return c.Op.Flag() + " " + dp
}

// CommandAddr returns the host:port of the server's command channel.
func (c Command) CommandAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.CommandPort))
}

// DataAddr returns host:dataPort, used in user-facing messages.
func (c Command) DataAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.DataPort))
}

// IsApplicationError reports whether a data payload is a server-reported
// error rather than content.
func IsApplicationError(payload []byte) bool {
	return strings.HasPrefix(string(payload), ApplicationErrorPrefix)
}
