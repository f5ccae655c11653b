package logger

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arqon/siteapi/internal/infrastructure/config"
)

const rotatingScheme = "lumberjack"

// rotatingSink adapts lumberjack to zap.Sink
type rotatingSink struct {
	*lumberjack.Logger
}

func (rotatingSink) Sync() error { return nil }

func init() {
	_ = zap.RegisterSink(rotatingScheme, func(u *url.URL) (zap.Sink, error) {
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return nil, fmt.Errorf("log file path is empty")
		}

		q := u.Query()
		return rotatingSink{&lumberjack.Logger{
			Filename:   path,
			MaxSize:    atoiOr(q.Get("maxsize"), 20),
			MaxBackups: atoiOr(q.Get("maxbackups"), 5),
			MaxAge:     atoiOr(q.Get("maxage"), 14),
			Compress:   true,
		}}, nil
	})
}

func rotatingFileURL(cfg config.LoggerConfig) (string, error) {
	abs, err := filepath.Abs(cfg.File)
	if err != nil {
		return "", fmt.Errorf("invalid log file path: %w", err)
	}

	q := url.Values{}
	q.Set("maxsize", strconv.Itoa(cfg.MaxSizeMB))
	q.Set("maxbackups", strconv.Itoa(cfg.MaxBackups))
	q.Set("maxage", strconv.Itoa(cfg.MaxAgeDays))

	u := url.URL{Scheme: rotatingScheme, Path: filepath.ToSlash(abs), RawQuery: q.Encode()}
	return u.String(), nil
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
