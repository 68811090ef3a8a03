package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/request"
)

var ErrWriteFailure = errors.New("response write failed")

type StatusCode int

const (
	StatusOK       StatusCode = 200
	StatusNotFound StatusCode = 404
)

const (
	// Version is the protocol token used in every status line.
	Version = "HTTP/1.0"
	// Reason is the fixed reason phrase, regardless of status.
	Reason = "NA"

	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"

	rootPath     = "/"
	notFoundBody = "Not found"
)

// Generate builds the full response for req. "/" gets a 200 with a JSON
// echo of uri and method, anything else a plain 404. The uri is compared
// byte for byte.
func Generate(req request.Request) []byte {
	var buf bytes.Buffer

	if req.URI() != rootPath {
		writeHead(&buf, StatusNotFound, ContentTypeText)
		buf.WriteString(notFoundBody)
		return buf.Bytes()
	}

	writeHead(&buf, StatusOK, ContentTypeJSON)
	fmt.Fprintf(&buf, "{\"uri\": %s, \"method\": %s}\r\n", quote(req.URI()), quote(req.Method()))
	return buf.Bytes()
}

// Write writes the response for req to w.
func Write(w io.Writer, req request.Request) error {
	data := Generate(req)
	n, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: %w", ErrWriteFailure, io.ErrShortWrite)
	}
	return nil
}

func writeHead(buf *bytes.Buffer, code StatusCode, contentType string) {
	fmt.Fprintf(buf, "%s %d %s\r\n", Version, code, Reason)
	fmt.Fprintf(buf, "Content-Type: %s\r\n", contentType)
	buf.WriteString("\r\n")
}

// quote encodes s as a JSON string literal. HTML characters are left as is.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		// strings always encode
		return `""`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
