// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init configures logrus for the process. Format is "json" or "text";
// an unknown level falls back to info.
func Init(out io.Writer, level, format string) {
	if out == nil {
		out = os.Stdout
	}
	log.SetOutput(out)

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}
