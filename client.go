package torero

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tv42/httpunix"
)

// adminHost is the name the socket is registered under with httpunix.
const adminHost = "torero"

// Client talks to a Server over its admin socket.
type Client struct {
	Name       string // optional, sent to identify the admin
	ServerName string // filled in by Hello

	socket string
	http   *http.Client
}

// NewClient returns a Client for the socket at socketpath.
// It returns an error only if the socket path can not be resolved.
func NewClient(socketpath string) (*Client, error) {
	if _, err := net.ResolveUnixAddr("unix", socketpath); err != nil {
		return nil, err
	}
	u := &httpunix.Transport{
		DialTimeout:           100 * time.Millisecond,
		RequestTimeout:        10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	u.RegisterLocation(adminHost, socketpath)
	t := &http.Transport{}
	t.RegisterProtocol(httpunix.Scheme, u)
	return &Client{
		socket: socketpath,
		http:   &http.Client{Transport: t},
	}, nil
}

// Hello greets the server and records its name.
func (c *Client) Hello() (string, error) {
	reply, err := c.do(http.MethodGet, "/hello?from="+url.QueryEscape(c.Name))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(reply, "HELLO from ") {
		return reply, fmt.Errorf("torero: unexpected greeting %q", reply)
	}
	c.ServerName = strings.TrimPrefix(reply, "HELLO from ")
	return reply, nil
}

// Status returns the server's status report.
func (c *Client) Status() (string, error) {
	return c.do(http.MethodGet, "/status")
}

// Runlevel asks the server to shift to level.
func (c *Client) Runlevel(level int) (string, error) {
	return c.do(http.MethodPost, "/runlevel/"+strconv.Itoa(level))
}

// Send runs a text command: "hello", "status", "runlevel N" or its
// alias "telinit N".
func (c *Client) Send(cmd string, args ...string) (string, error) {
	fields := strings.Fields(strings.Join(append([]string{cmd}, args...), " "))
	if len(fields) == 0 {
		return "", fmt.Errorf("torero: empty command")
	}
	switch strings.ToLower(fields[0]) {
	case "hello":
		return c.Hello()
	case "status":
		return c.Status()
	case "runlevel", "telinit":
		if len(fields) != 2 {
			return "", fmt.Errorf("torero: need runlevel to switch to (digit)")
		}
		level, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", fmt.Errorf("torero: bad runlevel %q: %w", fields[1], err)
		}
		return c.Runlevel(level)
	}
	return "", fmt.Errorf("torero: unknown command %q", fields[0])
}

func (c *Client) do(method, path string) (string, error) {
	req, err := http.NewRequest(method, httpunix.Scheme+"://"+adminHost+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(string(b))
	if resp.StatusCode != http.StatusOK {
		return reply, fmt.Errorf("torero: %s %s: %s", method, path, resp.Status)
	}
	return reply, nil
}

// Socket returns the path the client dials.
func (c *Client) Socket() string {
	return c.socket
}
