/*
* The MIT License (MIT)
*
* Copyright (c) 2016,2017,2020,2026  aerth <aerth@riseup.net>
*
* Permission is hereby granted, free of charge, to any person obtaining a copy
* of this software and associated documentation files (the "Software"), to deal
* in the Software without restriction, including without limitation the rights
* to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
* copies of the Software, and to permit persons to whom the Software is
* furnished to do so, subject to the following conditions:
*
* The above copyright notice and this permission notice shall be included in all
* copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
* IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
* FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
* AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
* LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
* OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
* SOFTWARE.
 */

package torero

import (
	"bytes"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"regexp"
)

// DefaultBufferSize is the size of the single read a request must fit in.
const DefaultBufferSize = 1024

// requestLine is the only request shape we answer with anything but 400.
var requestLine = regexp.MustCompile(`^GET[ \t]+(/[^ \t\r\n]*)[ \t]+(HTTP/[0-9]\.[0-9])\r\n$`)

// Request is what we keep from a request line.
type Request struct {
	Method string
	Target string
	Proto  string
}

// ParseRequest validates the first line of buf, up to and including the
// first newline. Anything after that line (headers) is ignored.
func ParseRequest(buf []byte) (Request, bool) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return Request{}, false
	}
	m := requestLine.FindSubmatch(buf[:i+1])
	if m == nil {
		return Request{}, false
	}
	return Request{Method: "GET", Target: string(m[1]), Proto: string(m[2])}, true
}

// Handler answers one request per connection out of a document root.
//
// The target is appended to Root as is: ".." is not cleaned out, so a
// request can name files outside of Root.
type Handler struct {
	Root       string
	BufferSize int
	Debug      bool

	log      *log.Logger
	counters *mucount
}

// NewHandler returns a Handler serving root.
func NewHandler(root string, bufsize int, logger *log.Logger) *Handler {
	if bufsize <= 0 {
		bufsize = DefaultBufferSize
	}
	return &Handler{Root: root, BufferSize: bufsize, log: logger, counters: newCounters()}
}

// ServeConn reads one request from conn and writes one response.
// A non-nil error means the transport failed and the connection should be
// dropped; bad requests and missing files are answered, not returned.
func (h *Handler) ServeConn(conn net.Conn) error {
	buf := make([]byte, h.BufferSize)
	n, err := Receive(conn, buf)
	if err != nil {
		return err
	}
	req, ok := ParseRequest(buf[:n])
	if !ok {
		return h.reply(conn, "-", 400, badRequest)
	}

	path := h.Root + req.Target
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return h.reply(conn, req.Target, 404, notFound)
	case info.IsDir():
		return h.serveDirectory(conn, req.Target, path)
	default:
		return h.serveFile(conn, req.Target, path)
	}
}

// serveDirectory sends dir/index.html if there is one, else a listing of
// the entries in the order the filesystem returns them.
func (h *Handler) serveDirectory(conn net.Conn, target, dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		h.logf("open %s: %v", dir, err)
		return h.reply(conn, target, 400, badRequest)
	}
	entries, err := f.ReadDir(-1)
	f.Close()
	if err != nil {
		h.logf("read %s: %v", dir, err)
		return h.reply(conn, target, 400, badRequest)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == "index.html" {
			return h.serveFile(conn, target, filepath.Join(dir, "index.html"))
		}
		names = append(names, e.Name())
	}
	return h.reply(conn, target, 200, htmlResponse(200, listingPage(target, names)))
}

// serveFile reads the whole file into memory and sends it.
func (h *Handler) serveFile(conn net.Conn, target, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		h.logf("read %s: %v", path, err)
		return h.reply(conn, target, 400, badRequest)
	}
	if err := Send(conn, fileHeader(len(body), ContentType(path))); err != nil {
		return err
	}
	h.count(target, 200, len(body))
	return Send(conn, body)
}

func (h *Handler) reply(conn net.Conn, target string, status int, response []byte) error {
	h.count(target, status, len(response))
	return Send(conn, response)
}

func (h *Handler) count(target string, status, size int) {
	h.counters.Up(fmt.Sprintf("status %d", status))
	if h.Debug {
		h.logf("GET %s %d %d bytes", target, status, size)
	}
}

func (h *Handler) logf(format string, args ...interface{}) {
	if h.log != nil {
		h.log.Printf(format, args...)
	}
}
