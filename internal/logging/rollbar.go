package logging

import (
	"github.com/rollbar/rollbar-go"
)

// RollbarConfig identifies the deployment to Rollbar.
type RollbarConfig struct {
	Token       string
	Environment string
	CodeVersion string
	ServerHost  string
}

// RollbarLogger prints like Logger and additionally reports warnings and errors to Rollbar.
type RollbarLogger struct {
	*Logger
	client *rollbar.Client
}

func NewRollbarLogger(base *Logger, conf RollbarConfig) *RollbarLogger {
	client := rollbar.New(conf.Token, conf.Environment, conf.CodeVersion, conf.ServerHost, "")
	return &RollbarLogger{Logger: base, client: client}
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.WARN, msg, args)
	l.Logger.Warn(msg, args...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.ERR, msg, args)
	l.Logger.Error(msg, args...)
}

// Close flushes queued reports.
func (l *RollbarLogger) Close() {
	l.client.Close()
}

// report sends the first error with its stack when there is one, the message otherwise.
func (l *RollbarLogger) report(level, msg string, args []interface{}) {
	msg, err, extras := rollbarArgs(msg, args)
	if err != nil {
		l.client.ErrorWithExtras(level, err, extras)
		return
	}
	l.client.MessageWithExtras(level, msg, extras)
}

// rollbarArgs splits key/value pairs into the first error and an extras map. The message is
// kept in extras so error reports still carry it.
func rollbarArgs(msg string, args []interface{}) (string, error, map[string]interface{}) {
	extras := make(map[string]interface{}, len(args)/2+1)
	var first error
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		if err, ok := args[i+1].(error); ok && first == nil {
			first = err
			continue
		}
		extras[key] = args[i+1]
	}
	if first != nil {
		extras["message"] = msg
	}
	return msg, first, extras
}
