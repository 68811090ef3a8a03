package request

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrMalformedHeaderLine  = errors.New("malformed header line")
	// ErrTransportClosed is returned when the stream ends (or fails) before
	// a complete line was read.
	ErrTransportClosed = errors.New("transport closed")
)

const (
	headerSeparator = ": "
	terminatorLine  = "\r\n"
)

// Headers maps a header name, kept in the case it was received, to its value.
type Headers map[string]string

// Request is the parsed request head. It is immutable once built.
type Request struct {
	method   string
	uri      string
	protocol string
	headers  Headers
}

// NewRequest builds a Request. The headers are copied.
func NewRequest(method, uri, protocol string, headers Headers) Request {
	h := Headers{}
	if headers != nil {
		h = maps.Clone(headers)
	}
	return Request{
		method:   method,
		uri:      uri,
		protocol: protocol,
		headers:  h,
	}
}

func (r Request) Method() string   { return r.method }
func (r Request) URI() string      { return r.uri }
func (r Request) Protocol() string { return r.protocol }

// Header returns the value stored for name. Lookup is exact, no case folding.
func (r Request) Header(name string) (string, bool) {
	v, ok := r.headers[name]
	return v, ok
}

// Headers returns a copy of the header collection.
func (r Request) Headers() Headers {
	return maps.Clone(r.headers)
}

// LogLine is the access-log view: "METHOD URI".
func (r Request) LogLine() string {
	return r.method + " " + r.uri
}

// Read parses the request line and the header block from br. The body,
// if any, is left unread.
func Read(br *bufio.Reader) (Request, error) {
	method, uri, protocol, err := ReadRequestLine(br)
	if err != nil {
		return Request{}, err
	}

	headers, err := ReadHeaders(br)
	if err != nil {
		return Request{}, err
	}

	return Request{
		method:   method,
		uri:      uri,
		protocol: protocol,
		headers:  headers,
	}, nil
}

// ReadRequestLine reads one line and splits it into method, uri and protocol.
func ReadRequestLine(br *bufio.Reader) (method, uri, protocol string, err error) {
	raw, err := readLine(br)
	if err != nil {
		return "", "", "", err
	}

	if !isASCII(raw) {
		return "", "", "", fmt.Errorf("%w: not ascii", ErrMalformedRequestLine)
	}

	// Unlike header lines, all trailing whitespace is dropped here.
	line := strings.TrimRightFunc(raw, unicode.IsSpace)

	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: expected 3 parts, got %d", ErrMalformedRequestLine, len(parts))
	}

	return parts[0], parts[1], parts[2], nil
}

// ReadHeaders reads "Name: Value" lines until a bare CRLF line. There is no
// limit on the number or size of header lines.
func ReadHeaders(br *bufio.Reader) (Headers, error) {
	headers := Headers{}

	for {
		raw, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if raw == terminatorLine {
			return headers, nil
		}

		line := trimEOL(raw)
		if !utf8.ValidString(line) {
			return nil, fmt.Errorf("%w: invalid utf-8", ErrMalformedHeaderLine)
		}

		name, value, ok := strings.Cut(line, headerSeparator)
		if !ok {
			return nil, fmt.Errorf("%w: missing %q in %q", ErrMalformedHeaderLine, headerSeparator, line)
		}
		headers[name] = value
	}
}

// readLine returns everything up to and including the next '\n'.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err == nil {
		return line, nil
	}
	if errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: %w", ErrTransportClosed, io.ErrUnexpectedEOF)
	}
	return "", fmt.Errorf("%w: %w", ErrTransportClosed, err)
}

func trimEOL(s string) string {
	return strings.TrimRight(s, "\r\n")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
