package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/lanscore/internal/seed"
)

// Default configuration constants.
const (
	defaultAttendees   = 20
	defaultSessions    = 4
	defaultGameID      = 730
	defaultPoints      = 5
	defaultMinutes     = 60
	defaultSlotWidth   = 10 * time.Minute
	defaultThreshold   = 0.5
	defaultTimeout     = 30 * time.Second
	defaultSeedTimeout = 5 * time.Minute
)

func main() {
	var (
		driver     = flag.String("driver", "sqlite", "Database driver: sqlite or postgres")
		dsn        = flag.String("dsn", "lanscore.db", "Database DSN")
		baseURL    = flag.String("url", "", "Base URL of the service; skip verification when empty")
		attendees  = flag.Int("attendees", defaultAttendees, "Users attending the LAN")
		sessions   = flag.Int("sessions", defaultSessions, "Play sessions per user")
		gameID     = flag.Int64("game", defaultGameID, "Game linked to the event")
		points     = flag.Int("points", defaultPoints, "Points per awarded timeslot")
		minutes    = flag.Int("minutes", defaultMinutes, "Event duration in minutes")
		slot       = flag.Duration("slot", defaultSlotWidth, "Timeslot width configured on the service")
		threshold  = flag.Float64("threshold", defaultThreshold, "Award threshold configured on the service")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Write the generated dataset as JSON to this file")
		logFile    = flag.String("log", "", "Mirror log output to this file")
		verbose    = flag.Bool("verbose", false, "Log every generated session")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seed.ShowHelp()
		return
	}

	closer, err := seed.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultSeedTimeout)
	defer cancel()

	cfg := &seed.Config{
		Driver:          *driver,
		DSN:             *dsn,
		BaseURL:         *baseURL,
		Attendees:       *attendees,
		SessionsPerUser: *sessions,
		GameID:          *gameID,
		Points:          *points,
		EventMinutes:    *minutes,
		SlotWidth:       *slot,
		Threshold:       *threshold,
		Timeout:         *timeout,
		OutputFile:      *outputFile,
		Verbose:         *verbose,
	}

	if _, err := seed.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Seed failed: " + err.Error() + "\n")
		cancel()
		stop()
		os.Exit(1)
	}
}
