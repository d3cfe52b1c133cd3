package controller

import (
	"context"
	"log/slog"

	"github.com/sweeney/cec-dpms/internal/cec"
	"github.com/sweeney/cec-dpms/internal/logging"
)

// LogPrefix marks transport diagnostics in the daemon log.
const LogPrefix = "libcec: "

// CommandObserver logs every inbound bus command at debug level.
func CommandObserver(logger *slog.Logger) func(cec.Command) {
	return func(cmd cec.Command) {
		if cmd.Poll {
			logger.Debug("bus poll", "initiator", cmd.Initiator.String(), "destination", cmd.Destination.String())
			return
		}
		logger.Debug("bus command",
			"opcode", cmd.Opcode.String(),
			"initiator", cmd.Initiator.String(),
			"destination", cmd.Destination.String())
	}
}

// LogObserver forwards transport diagnostics at the matching slog level.
func LogObserver(logger *slog.Logger) func(cec.LogMessage) {
	return func(msg cec.LogMessage) {
		logger.Log(context.Background(), Level(msg.Level), LogPrefix+msg.Message)
	}
}

// Level maps a transport log level onto slog.
func Level(l cec.LogLevel) slog.Level {
	switch l {
	case cec.LogLevelError:
		return slog.LevelError
	case cec.LogLevelWarning:
		return slog.LevelWarn
	case cec.LogLevelNotice:
		return slog.LevelInfo
	case cec.LogLevelTraffic, cec.LogLevelDebug:
		return slog.LevelDebug
	default:
		return logging.LevelTrace
	}
}
