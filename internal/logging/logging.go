// Package logging configura o logger global (logrus).
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/keenbingwood-bot/redflag2601/internal/config"
)

// Setup aplica nível e formato ao logger padrão. Saída vai para stdout quando out é nil.
func Setup(cfg config.LogConfig, out io.Writer) error {
	level, err := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if out == nil {
		out = os.Stdout
	}
	log.SetOutput(out)
	log.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %q", cfg.Format)
	}
	return nil
}
