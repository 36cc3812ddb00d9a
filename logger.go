package rbld

import "github.com/sirupsen/logrus"

// Log is the package-level logger used throughout rbld. cmd/rbld sets its
// level from the logLevel configuration option before starting the server.
var Log = logrus.New()

func init() {
	Log.SetLevel(logrus.InfoLevel)
}

// LevelFromName maps the enumerated logLevel configuration option
// (none, error, info, verbose) onto a logrus.Level.
func LevelFromName(name string) (logrus.Level, bool) {
	switch name {
	case "none":
		return logrus.PanicLevel, true
	case "error":
		return logrus.ErrorLevel, true
	case "info":
		return logrus.InfoLevel, true
	case "verbose":
		return logrus.DebugLevel, true
	default:
		return 0, false
	}
}
