package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/lanscore/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging initializes the logger and, when logFile is set, mirrors
// output to that file. The returned closer releases the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	if logFile == "" {
		return io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	if err := logger.SetFormat(logger.FormatText); err != nil {
		_ = file.Close()
		return nil, err
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the seed tool.
func ShowHelp() {
	os.Stdout.WriteString(`lanscore seed
=============

Writes a demo LAN, its attendees, a finished community event and synthetic
play sessions into the lanscore database. With -url it then triggers a
reconciliation pass on the running service and checks the leaderboard.

Usage:
  go run ./cmd/seed [options]

Options:
  -driver string
        Database driver: sqlite or postgres (default "sqlite")
  -dsn string
        Database DSN (default "lanscore.db")
  -url string
        Base URL of the service; skip verification when empty
  -attendees int
        Users attending the LAN (default 20)
  -sessions int
        Play sessions per user (default 4)
  -game int
        Game linked to the event (default 730)
  -points int
        Points per awarded timeslot (default 5)
  -minutes int
        Event duration in minutes (default 60)
  -slot duration
        Timeslot width configured on the service (default 10m)
  -threshold float
        Award threshold configured on the service (default 0.5)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Write the generated dataset as JSON to this file
  -log string
        Mirror log output to this file
  -verbose
        Log every generated session
  -help
        Show this help message

Examples:
  # Seed the local sqlite database
  go run ./cmd/seed

  # Seed postgres and verify against a running service
  go run ./cmd/seed -driver postgres -dsn "host=localhost user=lan dbname=lan" -url http://localhost:9080
`)
}
