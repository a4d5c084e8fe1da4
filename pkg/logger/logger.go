package logger

import (
	"fmt"
	"log/slog"
)

// Leveled exposes a slog.Logger through the Errorf/Warningf/Infof/Debugf
// methods that embedded libraries (badger) expect.
type Leveled struct {
	base *slog.Logger
}

// New returns a leveled adapter tagged with the component name.
func New(component string, base *slog.Logger) *Leveled {
	if base == nil {
		base = slog.Default()
	}
	return &Leveled{base: base.With("component", component)}
}

func (l *Leveled) Errorf(format string, args ...interface{}) {
	l.base.Error(fmt.Sprintf(format, args...))
}

func (l *Leveled) Warningf(format string, args ...interface{}) {
	l.base.Warn(fmt.Sprintf(format, args...))
}

// Infof is demoted to debug: badger reports every compaction at info.
func (l *Leveled) Infof(format string, args ...interface{}) {
	l.base.Debug(fmt.Sprintf(format, args...))
}

func (l *Leveled) Debugf(format string, args ...interface{}) {
	l.base.Debug(fmt.Sprintf(format, args...))
}
