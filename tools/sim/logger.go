package sim

import (
	"os"

	"github.com/ethereum/go-ethereum/log"
)

// Logger wraps a go-ethereum logger so it can provide LazyValue
type Logger struct {
	L log.Logger
}

// NewLogger logs to stderr at lvl and above
func NewLogger(lvl log.Lvl, ctx ...interface{}) Logger {
	l := log.New(ctx...)
	l.SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat(false))))
	return Logger{L: l}
}

func (l Logger) LazyValue(fn func() string) interface{} {
	return log.Lazy{Fn: fn}
}
func (l Logger) Trace(msg string, ctx ...interface{}) {
	l.L.Trace(msg, ctx...)
}
func (l Logger) Debug(msg string, ctx ...interface{}) {
	l.L.Debug(msg, ctx...)
}
func (l Logger) Info(msg string, ctx ...interface{}) {
	l.L.Info(msg, ctx...)
}
func (l Logger) Warn(msg string, ctx ...interface{}) {
	l.L.Warn(msg, ctx...)
}
func (l Logger) Crit(msg string, ctx ...interface{}) {
	l.L.Crit(msg, ctx...)
}
