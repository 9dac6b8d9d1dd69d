// Package logging provides structured JSON logging for teamwork.
//
// A [Logger] wraps log/slog and writes one JSON object per line to
// teamwork.log in the configured directory, or to stderr when no directory
// is set. Child loggers carry the team, teammate and component that emitted
// an entry:
//
//	logger, err := logging.NewLogger(dir, "info")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	wlog := logger.WithTeam("alpha").WithTeammate("dev")
//	wlog.Info("work item completed", "work_id", id)
//
// Long-running processes use [NewLoggerWithRotation], which moves the file
// to teamwork.log.1 (shifting older copies up to MaxBackups) once it reaches
// MaxSizeMB.
//
// [ReadLogs] parses the live file and its backups back into [Entry] values
// for `teamwork logs`; [Filter] narrows them by level, time, team, teammate,
// component or message text.
//
// Components take an optional *Logger and pass it through [OrNop], which
// substitutes a logger that discards everything.
package logging
