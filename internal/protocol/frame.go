package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Delimiter separates the decimal length prefix from the payload.
const Delimiter = '$'

// maxPrefixDigits bounds the length prefix so that a peer that never sends
// the delimiter cannot make the decoder read forever. 19 digits is the
// widest value that fits an int64.
const maxPrefixDigits = 19

// readChunkSize is the size of each socket read while accumulating a frame.
const readChunkSize = 1024

// ErrConnectionClosed is matched (via errors.Is) by frame errors caused by
// the peer closing the connection before a frame was complete.
var ErrConnectionClosed = errors.New("connection closed by peer")

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorClosed indicates the stream ended before the frame was complete.
	FrameErrorClosed FrameErrorKind = iota
	// FrameErrorMalformed indicates an unparseable length prefix.
	FrameErrorMalformed
	// FrameErrorRead indicates any other read failure (deadline, reset).
	FrameErrorRead
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Is reports closed-stream errors as ErrConnectionClosed.
func (e *FrameError) Is(target error) bool {
	return target == ErrConnectionClosed && e.Kind == FrameErrorClosed
}

// Encode returns payload prefixed with its decimal byte length and the
// delimiter. No escaping is done; the prefix alone delimits the frame.
func Encode(payload []byte) []byte {
	prefix := strconv.Itoa(len(payload))
	buf := make([]byte, 0, len(prefix)+1+len(payload))
	buf = append(buf, prefix...)
	buf = append(buf, Delimiter)
	return append(buf, payload...)
}

// FrameSize returns the encoded size of a frame carrying n payload bytes.
func FrameSize(n int) int {
	return len(strconv.Itoa(n)) + 1 + n
}

// WriteFrame writes the encoded payload to w in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(Encode(payload))
	return err
}

// FrameDecoder decodes length-prefixed frames from a stream.
type FrameDecoder struct {
	reader *bufio.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: bufio.NewReaderSize(r, readChunkSize)}
}

// Receive reads exactly one frame from r.
func Receive(r io.Reader) ([]byte, error) {
	return NewFrameDecoder(r).ReadFrame()
}

// ReadFrame reads a single frame from the stream and returns its payload.
// It keeps reading until the declared number of payload bytes has been
// accumulated, however many reads that takes.
//
// Errors:
//   - *FrameError with Kind=FrameErrorClosed: stream ended early
//   - *FrameError with Kind=FrameErrorMalformed: bad length prefix
//   - *FrameError with Kind=FrameErrorRead: underlying read failed
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	size, err := d.readPrefix()
	if err != nil {
		return nil, err
	}

	// Grow with the data actually received rather than trusting the prefix
	// for the allocation size.
	var payload bytes.Buffer
	if _, err := io.CopyN(&payload, d.reader, size); err != nil {
		return nil, readErr("failed to read payload", err)
	}
	return payload.Bytes(), nil
}

func (d *FrameDecoder) readPrefix() (int64, error) {
	var digits []byte
	for {
		b, err := d.reader.ReadByte()
		if err != nil {
			return 0, readErr("failed to read length prefix", err)
		}
		if b == Delimiter {
			break
		}
		if b < '0' || b > '9' {
			return 0, &FrameError{
				Kind: FrameErrorMalformed,
				Msg:  fmt.Sprintf("invalid byte %q in length prefix", b),
			}
		}
		if len(digits) == maxPrefixDigits {
			return 0, &FrameError{
				Kind: FrameErrorMalformed,
				Msg:  fmt.Sprintf("length prefix longer than %d digits", maxPrefixDigits),
			}
		}
		digits = append(digits, b)
	}
	if len(digits) == 0 {
		return 0, &FrameError{Kind: FrameErrorMalformed, Msg: "empty length prefix"}
	}
	size, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, &FrameError{Kind: FrameErrorMalformed, Msg: "invalid length prefix", Err: err}
	}
	return size, nil
}

func readErr(msg string, err error) *FrameError {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FrameError{Kind: FrameErrorClosed, Msg: msg, Err: err}
	}
	return &FrameError{Kind: FrameErrorRead, Msg: msg, Err: err}
}
