package log

import (
	"os"

	logging "github.com/op/go-logging"
	"github.com/pkg/errors"
)

const module = "usagemon"

var (
	log     = logging.MustGetLogger(module)
	leveled logging.LeveledBackend
)

func init() {
	// wrappers below add one frame between the caller and go-logging
	log.ExtraCalldepth = 1

	var backend logging.Backend = logging.NewLogBackend(os.Stderr, "", 0)
	setBackend(logging.NewBackendFormatter(backend, GetTextFormat()))
}

func setBackend(backend logging.Backend) {
	leveled = logging.AddModuleLevel(backend)
	log.SetBackend(leveled)
}

// SetLevel parses a level name such as "debug" or "warning" and applies it to
// the monitor's logger.
func SetLevel(level string) error {
	l, err := logging.LogLevel(level)
	if err != nil {
		return errors.Wrapf(err, "parse log level %q", level)
	}
	leveled.SetLevel(l, module)
	return nil
}

func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func Warningf(format string, args ...interface{}) {
	log.Warningf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

func Warning(err error) {
	log.Warning(err)
}

func Error(err error) {
	log.Error(err)
}
