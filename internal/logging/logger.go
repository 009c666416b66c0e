// Package logging provides the leveled logger used across the service.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger writes leveled messages followed by key/value pairs:
//
//	logger.Error("send result email", "attempt", 12, "err", err)
type Logger struct {
	std   *log.Logger
	debug bool
}

// New returns a logger writing to stdout, tagging each line with "[prefix] ".
func New(prefix string, debug bool) *Logger {
	return NewWithWriter(os.Stdout, prefix, debug)
}

func NewWithWriter(w io.Writer, prefix string, debug bool) *Logger {
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	return &Logger{std: log.New(w, prefix, log.LstdFlags|log.Lmsgprefix), debug: debug}
}

// Std exposes the underlying *log.Logger for libraries that want one.
func (l *Logger) Std() *log.Logger { return l.std }

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.debug {
		l.print("DEBUG", msg, args)
	}
}

func (l *Logger) Info(msg string, args ...interface{})  { l.print("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.print("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.print("ERROR", msg, args) }

func (l *Logger) print(level, msg string, args []interface{}) {
	l.std.Println(level + " " + msg + formatPairs(args))
}

// formatPairs renders args as " k=v k=v"; a trailing odd value is printed bare.
func formatPairs(args []interface{}) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			fmt.Fprintf(&b, " %v", args[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}
