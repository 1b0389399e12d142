// Package logger writes one JSON object per line to stderr. Fields are
// key/value pairs; values are stringified and scrubbed of PII and secrets
// unless redaction is turned off.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the severity of an entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a config value to a Level. Unknown values mean INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

type sink struct {
	mu     sync.Mutex
	level  Level
	redact bool
	out    io.Writer
}

var std = &sink{level: INFO, redact: true, out: os.Stderr}

// SetLevel sets the minimum level written.
func SetLevel(l Level) {
	std.mu.Lock()
	std.level = l
	std.mu.Unlock()
}

// SetRedactPII toggles field scrubbing.
func SetRedactPII(on bool) {
	std.mu.Lock()
	std.redact = on
	std.mu.Unlock()
}

// SetOutput redirects entries, mostly for tests.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.out = w
	std.mu.Unlock()
}

func Debug(msg string, kv ...interface{}) { std.write(DEBUG, msg, kv) }
func Info(msg string, kv ...interface{})  { std.write(INFO, msg, kv) }
func Warn(msg string, kv ...interface{})  { std.write(WARN, msg, kv) }
func Error(msg string, kv ...interface{}) { std.write(ERROR, msg, kv) }

func (s *sink) write(level Level, msg string, kv []interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}

	entry := make(map[string]string, 3+len(kv)/2)
	entry["time"] = time.Now().UTC().Format(time.RFC3339)
	entry["level"] = level.String()
	entry["msg"] = msg
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 == len(kv) {
			entry["!BADKEY"] = key
			break
		}
		val := stringify(kv[i+1])
		if s.redact {
			val = scrub(key, val)
		}
		entry[key] = val
	}

	line, _ := json.Marshal(entry)
	s.out.Write(append(line, '\n'))
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
