package braidhttp

import (
	"fmt"
	"io"
)

// WriteFrame writes one subscription frame (spec.md §6.1):
//
//	Version: "<id>"\r\n
//	Content-Length: <n>\r\n
//	\r\n
//	<n bytes of JSON>\r\n\r\n
func WriteFrame(w io.Writer, version string, body []byte) error {
	if _, err := fmt.Fprintf(w, "%s: %q\r\n", HeaderVersion, version); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n\r\n"))
	return err
}

// WriteKeepAlive writes a bare keep-alive: a lone CRLF, carrying no
// version (spec.md §4.4 step 4).
func WriteKeepAlive(w io.Writer) error {
	_, err := w.Write([]byte("\r\n"))
	return err
}
