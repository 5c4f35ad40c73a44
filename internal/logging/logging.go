package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes leveled records to stdout and a rolling file under the log dir.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

func New(dir, level string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "sos-service.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 7,
		MaxAge:     28, // days
		Compress:   true,
	}

	l := newLogger(io.MultiWriter(file, os.Stdout), level)
	l.file = file
	return l, nil
}

// NewWithWriter builds a Logger without a backing file, for tests and tools.
func NewWithWriter(w io.Writer, level string) *Logger {
	return newLogger(w, level)
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return newLogger(io.Discard, "panic")
}

func newLogger(w io.Writer, level string) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
	return &Logger{Logger: base}
}

func (l *Logger) Close() {
	if l.file == nil {
		return
	}
	_ = l.file.Close()
}
