// Package logging builds the JSON-lines logger shared by the HTTP layer,
// the service and the command line.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"instructapi/internal/config"
)

// New returns a logger that writes one JSON object per line to stdout.
func New(cfg config.LogConfig) *logrus.Logger {
	return NewWithWriter(os.Stdout, cfg.Level, cfg.Location())
}

// NewWithWriter returns a JSON logger writing to w with timestamps rendered in loc.
// Unknown levels fall back to info.
func NewWithWriter(w io.Writer, level string, loc *time.Location) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&locationFormatter{
		loc: loc,
		inner: &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
			},
		},
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

type locationFormatter struct {
	loc   *time.Location
	inner logrus.Formatter
}

func (f *locationFormatter) Format(e *logrus.Entry) ([]byte, error) {
	if f.loc != nil {
		e.Time = e.Time.In(f.loc)
	}
	return f.inner.Format(e)
}

// Init configures the package-level logrus logger from cfg and returns it,
// so that code logging through logrus directly shares the same output.
func Init(cfg config.LogConfig) *logrus.Logger {
	l := New(cfg)
	std := logrus.StandardLogger()
	std.SetOutput(l.Out)
	std.SetFormatter(l.Formatter)
	std.SetLevel(l.Level)
	return std
}
