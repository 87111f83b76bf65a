package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lixenwraith/vi-highway/engine"
)

// recordBatch is rows buffered per transaction
const recordBatch = 256

// RunInfo describes one recorded run
type RunInfo struct {
	Label    string
	Segments int
	Capacity int
	Workers  int
	Serial   bool
}

// Summary aggregates the ticks of one run
type Summary struct {
	Ticks       int
	MeanCars    float64
	MaxMigrated int
	Overtaking  int // Sum of per-tick overtaking counts
	MeanSpeed   float64
	MeanStep    time.Duration
	Digest      string
}

// Recorder appends tick stats for one run to an SQLite database
// Not safe for concurrent use; the scheduler's OnTick callback is its only writer
type Recorder struct {
	db      *sql.DB
	runID   int64
	pending []engine.TickStats
}

// Open creates the schema if needed and starts a new run
func Open(path string, info RunInfo) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := configureDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}

	res, err := db.Exec(`
		INSERT INTO runs (label, started_at, segments, capacity, workers, serial)
		VALUES (?, ?, ?, ?, ?, ?)`,
		info.Label, time.Now().Unix(), info.Segments, info.Capacity, info.Workers, info.Serial)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("start run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("start run: %w", err)
	}

	return &Recorder{db: db, runID: runID, pending: make([]engine.TickStats, 0, recordBatch)}, nil
}

func configureDatabase(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func initializeSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		label       TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		segments    INTEGER NOT NULL,
		capacity    INTEGER NOT NULL,
		workers     INTEGER NOT NULL,
		serial      INTEGER NOT NULL,
		digest      TEXT
	);

	CREATE TABLE IF NOT EXISTS ticks (
		run_id      INTEGER NOT NULL,
		tick        INTEGER NOT NULL,
		cars        INTEGER NOT NULL,
		migrated    INTEGER NOT NULL,
		overtaking  INTEGER NOT NULL,
		merging     INTEGER NOT NULL,
		mean_speed  REAL NOT NULL,
		step_ns     INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick)
	) WITHOUT ROWID;
	`
	_, err := db.Exec(schema)
	return err
}

// RunID returns the database id of the current run
func (r *Recorder) RunID() int64 {
	return r.runID
}

// Record buffers one tick, flushing a full batch in a single transaction
func (r *Recorder) Record(stats engine.TickStats) error {
	r.pending = append(r.pending, stats)
	if len(r.pending) >= recordBatch {
		return r.Flush()
	}
	return nil
}

// Flush writes buffered ticks
func (r *Recorder) Flush() error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO ticks
		(run_id, tick, cars, migrated, overtaking, merging, mean_speed, step_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert statement in transaction: %w", err)
	}
	defer stmt.Close()

	for _, s := range r.pending {
		if _, err := stmt.Exec(r.runID, int64(s.Tick), s.Cars, s.Migrated, s.Overtaking, s.Merging, s.MeanSpeed, s.Duration.Nanoseconds()); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert tick %d: %w", s.Tick, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ticks: %w", err)
	}
	r.pending = r.pending[:0]
	return nil
}

// Finish stores the final state digest of the run
func (r *Recorder) Finish(digest string) error {
	if err := r.Flush(); err != nil {
		return err
	}
	_, err := r.db.Exec(`UPDATE runs SET digest = ? WHERE id = ?`, digest, r.runID)
	return err
}

// Summary aggregates the recorded ticks of the current run
func (r *Recorder) Summary() (Summary, error) {
	if err := r.Flush(); err != nil {
		return Summary{}, err
	}

	var (
		s       Summary
		meanNs  sql.NullFloat64
		cars    sql.NullFloat64
		speed   sql.NullFloat64
		maxMig  sql.NullInt64
		overSum sql.NullInt64
		digest  sql.NullString
	)
	err := r.db.QueryRow(`
		SELECT COUNT(*), AVG(cars), MAX(migrated), SUM(overtaking), AVG(mean_speed), AVG(step_ns)
		FROM ticks WHERE run_id = ?`, r.runID).
		Scan(&s.Ticks, &cars, &maxMig, &overSum, &speed, &meanNs)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}
	if err := r.db.QueryRow(`SELECT digest FROM runs WHERE id = ?`, r.runID).Scan(&digest); err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}

	s.MeanCars = cars.Float64
	s.MaxMigrated = int(maxMig.Int64)
	s.Overtaking = int(overSum.Int64)
	s.MeanSpeed = speed.Float64
	s.MeanStep = time.Duration(meanNs.Float64)
	s.Digest = digest.String
	return s, nil
}

// Close flushes and closes the database
func (r *Recorder) Close() error {
	flushErr := r.Flush()
	if err := r.db.Close(); err != nil {
		return err
	}
	return flushErr
}
