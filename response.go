package torero

import (
	"errors"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"
)

// ErrNoProgress is returned by Send when the transport accepts zero bytes
// without reporting an error.
var ErrNoProgress = errors.New("torero: write made no progress")

// Send writes all of data to w. Short writes are retried with the unsent
// remainder until everything is out or w reports an error.
func Send(w io.Writer, data []byte) error {
	sent := 0
	for sent < len(data) {
		n, err := w.Write(data[sent:])
		sent += n
		if err != nil {
			return fmt.Errorf("torero: send failed after %d of %d bytes: %w", sent, len(data), err)
		}
		if n == 0 {
			return ErrNoProgress
		}
	}
	return nil
}

// Receive performs exactly one read into buf and returns the byte count,
// which may be less than len(buf). A peer that closed without sending
// anything yields 0 and no error.
func Receive(r io.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return n, fmt.Errorf("torero: receive failed: %w", err)
	}
	return n, nil
}

// header of a 200 response for a file body. An unknown content type
// leaves the Content-Type header out.
func fileHeader(size int, contentType string) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", size)
	if contentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// htmlResponse is a complete response with a text/html body.
func htmlResponse(status int, body string) []byte {
	return []byte(fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n%s",
		status, statusText[status], len(body), body))
}

var statusText = map[int]string{
	200: "OK",
	400: "Bad Request",
	404: "Not Found",
}

var (
	badRequest = htmlResponse(400, errorPage("400 Bad Request",
		"The browser sent a false request.", "Please try again."))
	notFound = htmlResponse(404, errorPage("404 Not Found",
		"File Not Found", "Could not find the requested file"))
)

func errorPage(title, heading, text string) string {
	return "<!DOCTYPE html>\n<html>\n<head>\n" +
		"\t<title>" + title + "</title>\n" +
		"</head>\n<body>\n" +
		"\t<h1>" + heading + "</h1>\n" +
		"\t\t<p>" + text + "</p>\n" +
		"</body>\n</html>\n"
}

// listingPage renders one link per entry name, in the order given.
func listingPage(target string, names []string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<body>\n")
	b.WriteString("<h1> Files found in " + html.EscapeString(target) + "</h1>\n")
	b.WriteString("<ul>\n")
	for _, name := range names {
		b.WriteString(`<li><a href="` + html.EscapeString(name) + `">` + html.EscapeString(name) + "</a></li>\n")
	}
	b.WriteString("</ul>\n</body>\n</html>\n")
	return b.String()
}

// ContentType maps a file name to the Content-Type sent with it, or ""
// when the extension is not one we know.
func ContentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "jpg", "png", "gif":
		return "image/" + ext
	case "html", "txt":
		return "text/" + ext
	case "pdf":
		return "application/pdf"
	}
	return ""
}
