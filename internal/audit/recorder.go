package audit

import (
	"context"

	"github.com/nerrad567/seestar-core/internal/telescope/command"
)

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder adapts a repository into a command.Recorder, so every resolved
// intent lands in the audit trail. Failed inserts are logged and dropped;
// auditing never blocks or fails a command.
//
// Example:
//
//	repo := audit.NewSQLiteRepository(db.DB)
//	coord := command.New(c, store, command.Options{Recorder: audit.Recorder(repo, logger)})
func Recorder(repo Repository, logger Logger) command.Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(res command.Result) {
		e, err := EntryFromResult(res)
		if err != nil {
			logger.Warn("audit entry skipped", "command_id", res.ID, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := repo.Create(ctx, e); err != nil {
			logger.Error("recording command audit entry failed",
				"command_id", res.ID,
				"kind", string(res.Kind),
				"error", err,
			)
		}
	}
}
