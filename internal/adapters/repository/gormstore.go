package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/internal/domain/types"
	"github.com/okian/lanscore/pkg/logger"
	"github.com/okian/lanscore/pkg/metrics"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Default store configuration constants.
const (
	defaultDSN             = "lanscore.db"
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = time.Hour
	sqliteBusyTimeoutMS    = 5000
)

// Store implements Repository and Leaderboard on top of GORM.
type Store struct {
	db *gorm.DB

	driver          string
	dsn             string
	maxOpenConns    int
	connMaxLifetime time.Duration

	logger logger.Logger
}

var (
	_ Repository  = (*Store)(nil)
	_ Leaderboard = (*Store)(nil)
)

// New opens the database and migrates the schema.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	s := &Store{
		driver:          DriverSQLite,
		dsn:             defaultDSN,
		maxOpenConns:    defaultMaxOpenConns,
		connMaxLifetime: defaultConnMaxLifetime,
		logger:          logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}

	var dialector gorm.Dialector
	switch s.driver {
	case DriverSQLite:
		dialector = sqlite.Open(s.dsn)
	case DriverPostgres:
		dialector = postgres.Open(s.dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, s.driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting database handle: %w", err)
	}
	if s.driver == DriverSQLite {
		// SQLite only supports one writer at a time, so limit connections
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		if err := db.WithContext(ctx).Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyTimeoutMS)).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("setting pragmas: %w", err)
		}
	} else {
		sqlDB.SetMaxOpenConns(s.maxOpenConns)
		sqlDB.SetConnMaxLifetime(s.connMaxLifetime)
	}

	s.db = db
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	s.logger.Info(ctx, "database ready", logger.String("driver", s.driver))
	return s, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&model.Lan{},
		&model.Attendee{},
		&model.Event{},
		&model.Timeslot{},
		&model.GameActivity{},
		&model.Score{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting database handle: %w", err)
	}
	return sqlDB.Close()
}

// Driver returns the configured driver name.
func (s *Store) Driver() string { return s.driver }

// --- Reconciliation reads ---

// ActiveLans returns the active LANs ordered by id.
func (s *Store) ActiveLans(ctx context.Context) ([]model.Lan, error) {
	defer observeQuery(time.Now())

	var lans []model.Lan
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&lans).Error
	if err != nil {
		return nil, fmt.Errorf("listing active lans: %w", err)
	}
	return lans, nil
}

// ListIncompleteCommunityEvents implements Repository.
func (s *Store) ListIncompleteCommunityEvents(ctx context.Context, lanID int64, width time.Duration, now time.Time) ([]model.Event, error) {
	defer observeQuery(time.Now())

	widthMinutes := int(width / time.Minute)
	if widthMinutes < 1 {
		widthMinutes = 1
	}

	var events []model.Event
	err := s.db.WithContext(ctx).
		Preload("Timeslots", func(db *gorm.DB) *gorm.DB {
			return db.Order("timeslots.time ASC")
		}).
		Where("lan_id = ? AND game_id IS NOT NULL AND points > 0 AND is_processed = ? AND start_time <= ?",
			lanID, false, now.UTC()).
		Where("(SELECT COUNT(*) FROM timeslots t WHERE t.event_id = events.id AND t.is_processed = ?) < events.duration_minutes / ?",
			true, widthMinutes).
		Order("start_time ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing incomplete events for lan %d: %w", lanID, err)
	}
	return events, nil
}

// WithinTx implements Repository. GORM rolls back on error or panic.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	defer observeUpdate(time.Now())

	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &gormTx{db: db})
	})
}

// gormTx implements Tx on an open GORM transaction.
type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) InsertTimeslots(ctx context.Context, eventID int64, times []time.Time) ([]model.Timeslot, error) {
	if len(times) == 0 {
		return nil, nil
	}
	rows := make([]model.Timeslot, len(times))
	for i, at := range times {
		rows[i] = model.Timeslot{EventID: eventID, Time: at.UTC()}
	}
	if err := t.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("inserting timeslots for event %d: %w", eventID, err)
	}
	return rows, nil
}

func (t *gormTx) TimeslotActivities(ctx context.Context, lanID int64, event *model.Event, slot model.Timeslot, slotEnd time.Time) ([]model.GameActivity, error) {
	if !event.HasGame() {
		return nil, fmt.Errorf("event %d: %w", event.ID, ErrNotFound)
	}

	var acts []model.GameActivity
	err := t.db.WithContext(ctx).
		Model(&model.GameActivity{}).
		Select("game_activities.*").
		Joins("JOIN attendees ON attendees.user_id = game_activities.user_id AND attendees.lan_id = ?", lanID).
		Where("game_activities.game_id = ? AND game_activities.started_at < ? AND (game_activities.ended_at IS NULL OR game_activities.ended_at > ?)",
			*event.GameID, slotEnd.UTC(), slot.Time.UTC()).
		Order("game_activities.user_id ASC, game_activities.started_at ASC").
		Find(&acts).Error
	if err != nil {
		return nil, fmt.Errorf("loading activities for timeslot %d: %w", slot.ID, err)
	}
	return acts, nil
}

func (t *gormTx) InsertScoresIgnoreConflict(ctx context.Context, rows []model.Score) ([]model.Score, error) {
	inserted := make([]model.Score, 0, len(rows))
	for i := range rows {
		row := rows[i]
		row.ID = 0
		row.CreatedAt = row.CreatedAt.UTC()
		res := t.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "timeslot_id"}, {Name: "user_id"}},
				DoNothing: true,
			}).
			Create(&row)
		if res.Error != nil {
			return nil, fmt.Errorf("inserting score for user %d timeslot %d: %w", row.UserID, row.TimeslotID, res.Error)
		}
		if res.RowsAffected == 1 {
			inserted = append(inserted, row)
		}
	}
	return inserted, nil
}

func (t *gormTx) MarkTimeslotsProcessed(ctx context.Context, eventID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := t.db.WithContext(ctx).
		Model(&model.Timeslot{}).
		Where("event_id = ? AND id IN ?", eventID, ids).
		Update("is_processed", true).Error
	if err != nil {
		return fmt.Errorf("marking timeslots of event %d: %w", eventID, err)
	}
	return nil
}

func (t *gormTx) MarkEventProcessed(ctx context.Context, eventID int64) error {
	err := t.db.WithContext(ctx).
		Model(&model.Event{}).
		Where("id = ?", eventID).
		Update("is_processed", true).Error
	if err != nil {
		return fmt.Errorf("marking event %d: %w", eventID, err)
	}
	return nil
}

// --- Read models ---

// Leaderboard returns community point totals of a LAN, highest first.
func (s *Store) Leaderboard(ctx context.Context, lanID int64, limit int) ([]types.Entry, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	defer observeQuery(time.Now())

	var rows []struct {
		UserID int64
		Points int64
	}
	err := s.db.WithContext(ctx).
		Model(&model.Score{}).
		Select("user_id, SUM(points) AS points").
		Where("lan_id = ? AND type = ?", lanID, model.ScoreTypeCommunityGame).
		Group("user_id").
		Order("points DESC, user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard for lan %d: %w", lanID, err)
	}

	entries := make([]types.Entry, len(rows))
	for i, r := range rows {
		entries[i] = types.Entry{Rank: i + 1, UserID: r.UserID, Points: r.Points}
	}
	return entries, nil
}

// GetEvent returns an event with its timeslots.
func (s *Store) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	var event model.Event
	err := s.db.WithContext(ctx).
		Preload("Timeslots", func(db *gorm.DB) *gorm.DB {
			return db.Order("timeslots.time ASC")
		}).
		First(&event, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ScoresForEvent returns the scores of an event ordered by time and user.
func (s *Store) ScoresForEvent(ctx context.Context, eventID int64) ([]model.Score, error) {
	var scores []model.Score
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC, user_id ASC").
		Find(&scores).Error
	return scores, err
}

// --- Writes used by administration and seeding ---

// CreateLan stores a LAN and fills in its ID.
func (s *Store) CreateLan(ctx context.Context, lan *model.Lan) error {
	return s.db.WithContext(ctx).Create(lan).Error
}

// AddAttendee registers a user at a LAN. Re-adding is a no-op.
func (s *Store) AddAttendee(ctx context.Context, lanID, userID int64) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Attendee{LanID: lanID, UserID: userID}).Error
}

// CreateEvent stores an event and fills in its ID.
func (s *Store) CreateEvent(ctx context.Context, event *model.Event) error {
	event.StartTime = event.StartTime.UTC()
	if event.CancelledAt != nil {
		at := event.CancelledAt.UTC()
		event.CancelledAt = &at
	}
	return s.db.WithContext(ctx).Omit("Timeslots").Create(event).Error
}

// CancelEvent records the cancellation time of an event.
func (s *Store) CancelEvent(ctx context.Context, eventID int64, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&model.Event{}).
		Where("id = ?", eventID).
		Update("cancelled_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}
	return nil
}

// RecordActivity stores an observed play session.
func (s *Store) RecordActivity(ctx context.Context, act *model.GameActivity) error {
	act.StartedAt = act.StartedAt.UTC()
	if act.EndedAt != nil {
		end := act.EndedAt.UTC()
		act.EndedAt = &end
	}
	return s.db.WithContext(ctx).Create(act).Error
}

// InsertTimeslotsDirect stores timeslots outside reconciliation. It exists
// for importing data and for reproducing stored anomalies.
func (s *Store) InsertTimeslotsDirect(ctx context.Context, eventID int64, times []time.Time) ([]model.Timeslot, error) {
	return (&gormTx{db: s.db}).InsertTimeslots(ctx, eventID, times)
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
}
