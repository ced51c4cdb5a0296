// Package logs configures logrus for both the CLI process and the
// re-exec'd init process: either plain stderr output, or JSON records
// forwarded over a log pipe to the parent for the re-exec'd stages.
package logs

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Config controls where and how log output is written. LogPipeFd, when
// set, takes priority over LogFilePath: the init process logs over a
// dedicated pipe fd passed down by its parent rather than stderr, since
// stderr may no longer be safe to use once namespaces/rootfs have
// changed.
type Config struct {
	LogLevel    logrus.Level
	LogFilePath string
	LogPipeFd   string
	LogFormat   string
}

// ConfigureLogging points logrus's standard logger at the configured
// destination and formatter. Called once from main's app.Before for the
// CLI process, and once from the init entrypoint using the FD plumbed
// through _LIBCONTAINER_LOGPIPE.
func ConfigureLogging(config Config) error {
	logrus.SetLevel(config.LogLevel)
	logrus.SetOutput(os.Stderr)

	if config.LogFormat == "json" {
		logrus.SetFormatter(new(logrus.JSONFormatter))
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	}

	switch {
	case config.LogPipeFd != "":
		fd, err := strconv.Atoi(config.LogPipeFd)
		if err != nil {
			return fmt.Errorf("logs: invalid log pipe fd %q: %w", config.LogPipeFd, err)
		}
		logrus.SetOutput(os.NewFile(uintptr(fd), "logpipe"))
	case config.LogFilePath != "":
		f, err := os.OpenFile(config.LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("logs: open log file %s: %w", config.LogFilePath, err)
		}
		logrus.SetOutput(f)
	}

	return nil
}
