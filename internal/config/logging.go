// README: Logger construction from the log section.
package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger returns a logrus logger writing text to stderr at the configured level.
func (c Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}
