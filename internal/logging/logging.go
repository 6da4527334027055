// README: Structured logger setup (logrus) shared by all modules.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. format is "json" or "text"; level is any
// logrus level name, falling back to info.
func New(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
