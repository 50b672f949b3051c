package torero

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// ErrConfig is wrapped by every configuration error.
var ErrConfig = errors.New("torero: bad config")

// Config is fixed once the server is created. Fields are exported so
// they can be read from a JSON config file.
type Config struct {
	Name       string // user friendly name, reported to admin clients
	Port       int    // TCP port, 0 picks a free one
	Root       string // document root
	Workers    int    // worker count
	QueueSize  int    // connections accepted but not yet picked up by a worker
	Backlog    int    // kernel accept backlog
	BufferSize int    // bytes read for a request
	Socket     string // path of the admin unix socket, empty for none
	Level      int    // runlevel to enter on Start, 1 or 3
	Debug      bool   // access log and short file names in the log
	Log        string // stdout, stderr or a file path

	// GracePeriod bounds how long runlevel shifts wait on the acceptor
	// and the pool.
	GracePeriod time.Duration `json:"-"`
}

// DefaultConfig returns the configuration used for anything not set.
func DefaultConfig() Config {
	return Config{
		Name:        "Torero",
		Workers:     5,
		QueueSize:   10,
		Backlog:     10,
		BufferSize:  DefaultBufferSize,
		Level:       3,
		Log:         "stdout",
		GracePeriod: 3 * time.Second,
	}
}

// ReadConfig reads a JSON config file on top of DefaultConfig.
func ReadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("torero: reading config: %w", err)
	}
	if len(b) == 0 {
		return Config{}, fmt.Errorf("%w: empty file %q", ErrConfig, path)
	}
	return ParseConfig(b)
}

// ParseConfig decodes JSON on top of DefaultConfig. The result is not
// validated, the document root usually comes from the command line.
func ParseConfig(b []byte) (Config, error) {
	c := DefaultConfig()
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return c, nil
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	var problems []string
	if c.Root == "" {
		problems = append(problems, "need document root")
	}
	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Workers < 1 {
		problems = append(problems, "need at least one worker")
	}
	if c.QueueSize < 1 {
		problems = append(problems, "queue size must be positive")
	}
	if c.Backlog < 1 {
		problems = append(problems, "backlog must be positive")
	}
	if c.BufferSize < 1 {
		problems = append(problems, "buffer size must be positive")
	}
	if c.Level != 1 && c.Level != 3 {
		problems = append(problems, fmt.Sprintf("default runlevel %d, try 1 or 3", c.Level))
	}
	if len(problems) != 0 {
		return fmt.Errorf("%w: %s", ErrConfig, strings.Join(problems, " AND "))
	}
	return nil
}

// openLog returns the writer named by c.Log.
func (c Config) openLog() (io.Writer, error) {
	switch c.Log {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(c.Log, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("torero: opening log: %w", err)
	}
	return f, nil
}

func (c Config) logFlags() int {
	if c.Debug {
		return log.LstdFlags | log.Lshortfile
	}
	return log.LstdFlags
}
