package mocks

import (
	"bytes"
	"log/slog"
)

func NewLoggerMock() (*bytes.Buffer, *slog.Logger) {
	return NewLevelLoggerMock(slog.LevelInfo)
}

func NewLevelLoggerMock(level slog.Level) (*bytes.Buffer, *slog.Logger) {
	buf := &bytes.Buffer{}
	return buf, slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}
