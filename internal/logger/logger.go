// Package logger configures process-wide logging and hands out named loggers.
package logger

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// Root is the name prefix shared by every logger in the process.
const Root = "ledgerweaver"

// ErrUnknownLevel is returned for level names Verbosity does not recognize.
var ErrUnknownLevel = errors.New("unknown log level")

var levelVerbosity = map[string]int{
	"none":     -4,
	"critical": -3,
	"error":    -2,
	"warning":  -1,
	"notice":   0,
	"info":     1,
	"debug":    2,
}

// Levels returns the accepted level names, least verbose first.
func Levels() []string {
	out := make([]string, 0, len(levelVerbosity))
	for name := range levelVerbosity {
		out = append(out, name)
	}
	slices.SortFunc(out, func(a, b string) int { return levelVerbosity[a] - levelVerbosity[b] })
	return out
}

// Verbosity maps a level name to a commonlog verbosity.
func Verbosity(level string) (int, error) {
	v, ok := levelVerbosity[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return 0, fmt.Errorf("%w %q (want one of %s)", ErrUnknownLevel, level, strings.Join(Levels(), ", "))
	}
	return v, nil
}

// Configure sets the maximum level and destination of the process backend.
// An empty file logs to stderr.
func Configure(level, file string) error {
	v, err := Verbosity(level)
	if err != nil {
		return err
	}
	if file == "" {
		commonlog.Configure(v, nil)
	} else {
		commonlog.Configure(v, &file)
	}
	return nil
}

// Get returns the logger for a subsystem, e.g. Get("syntax").
func Get(name string) commonlog.Logger {
	if name == "" {
		return commonlog.GetLogger(Root)
	}
	return commonlog.GetLogger(Root + "." + name)
}

// Once logs a message the first time it is used and stays silent afterwards.
type Once struct {
	once sync.Once
}

// Errorf logs at error level unless o already logged. It reports whether it logged.
func (o *Once) Errorf(log commonlog.Logger, format string, args ...any) bool {
	logged := false
	o.once.Do(func() {
		log.Errorf(format, args...)
		logged = true
	})
	return logged
}

// Warningf logs at warning level unless o already logged. It reports whether it logged.
func (o *Once) Warningf(log commonlog.Logger, format string, args ...any) bool {
	logged := false
	o.once.Do(func() {
		log.Warningf(format, args...)
		logged = true
	})
	return logged
}
