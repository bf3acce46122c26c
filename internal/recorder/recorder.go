// Package recorder persists simulation snapshots to a SQLite database so a
// run can be replayed or analysed after the fact.
package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cxd309/citysim-engine/internal/engine"
)

// ErrNoRun is returned when a snapshot is recorded before Begin.
var ErrNoRun = errors.New("no run started")

// Run is one recorded simulation.
type Run struct {
	ID           uint      `json:"id" gorm:"primarykey"`
	SimulationID string    `json:"simulationId" gorm:"size:127;index:idx_run_simulation_id"`
	StartedAt    time.Time `json:"startedAt"`
	Ticks        uint64    `json:"ticks"`
}

// VehicleFrame is one vehicle's state at the end of a tick.
type VehicleFrame struct {
	ID        uint    `json:"id" gorm:"primarykey"`
	RunID     uint    `json:"runId" gorm:"index:idx_vehicle_frame_run_tick"`
	Tick      uint64  `json:"tick" gorm:"index:idx_vehicle_frame_run_tick"`
	VehicleID int     `json:"vehicleId"`
	State     string  `json:"state" gorm:"size:32"`
	EdgeID    int     `json:"edgeId"`
	Dir       int8    `json:"dir"`
	Progress  float64 `json:"progress"`
	Speed     float64 `json:"speed"`
	Maneuver  string  `json:"maneuver" gorm:"size:16"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Heading   float64 `json:"heading"`
}

// SignalFrame is one intersection's signal state at the end of a tick.
type SignalFrame struct {
	ID         uint   `json:"id" gorm:"primarykey"`
	RunID      uint   `json:"runId" gorm:"index:idx_signal_frame_run_tick"`
	Tick       uint64 `json:"tick" gorm:"index:idx_signal_frame_run_tick"`
	NodeID     int    `json:"nodeId"`
	ActiveEdge int    `json:"activeEdge"`
	Remaining  int    `json:"remaining"`
}

// Recorder writes snapshots of a single run. It implements engine.Sink.
type Recorder struct {
	db     *gorm.DB
	logger zerolog.Logger
	run    Run
}

// Open connects to the SQLite database at path, creating it and its tables
// when needed.
func Open(path string, log zerolog.Logger) (*Recorder, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening recorder database %q: %w", path, err)
	}
	if err := db.AutoMigrate(&Run{}, &VehicleFrame{}, &SignalFrame{}); err != nil {
		return nil, fmt.Errorf("migrating recorder schema: %w", err)
	}
	log.Info().Str("path", path).Msg("recording snapshots")
	return &Recorder{db: db, logger: log}, nil
}

// Begin starts a new run. Later snapshots are stored against it.
func (r *Recorder) Begin(simulationID string) (Run, error) {
	run := Run{SimulationID: simulationID, StartedAt: time.Now().UTC()}
	if err := r.db.Create(&run).Error; err != nil {
		return Run{}, fmt.Errorf("creating run: %w", err)
	}
	r.run = run
	return run, nil
}

// Record stores every vehicle and signal of s in one transaction.
func (r *Recorder) Record(s engine.Snapshot) error {
	if r.run.ID == 0 {
		return ErrNoRun
	}
	vehicles := make([]VehicleFrame, 0, len(s.Vehicles))
	for _, v := range s.Vehicles {
		vehicles = append(vehicles, VehicleFrame{
			RunID:     r.run.ID,
			Tick:      s.Tick,
			VehicleID: int(v.ID),
			State:     string(v.State),
			EdgeID:    int(v.Edge),
			Dir:       int8(v.Dir),
			Progress:  v.Progress,
			Speed:     v.Speed,
			Maneuver:  string(v.Maneuver),
			X:         v.Position.X,
			Y:         v.Position.Y,
			Heading:   v.Heading,
		})
	}
	signals := make([]SignalFrame, 0, len(s.Signals))
	for _, sv := range s.Signals {
		signals = append(signals, SignalFrame{
			RunID:      r.run.ID,
			Tick:       s.Tick,
			NodeID:     int(sv.Node),
			ActiveEdge: int(sv.Active),
			Remaining:  sv.Remaining,
		})
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if len(vehicles) > 0 {
			if err := tx.CreateInBatches(&vehicles, 500).Error; err != nil {
				return err
			}
		}
		if len(signals) > 0 {
			if err := tx.CreateInBatches(&signals, 500).Error; err != nil {
				return err
			}
		}
		return tx.Model(&Run{}).Where("id = ?", r.run.ID).Update("ticks", s.Tick).Error
	})
	if err != nil {
		return fmt.Errorf("recording tick %d: %w", s.Tick, err)
	}
	r.run.Ticks = s.Tick
	r.logger.Trace().Uint64("tick", s.Tick).Int("vehicles", len(vehicles)).Msg("snapshot recorded")
	return nil
}

// Runs lists recorded runs, oldest first.
func (r *Recorder) Runs() ([]Run, error) {
	var runs []Run
	if err := r.db.Order("id").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Frames returns the vehicles recorded for one tick of a run, by vehicle id.
func (r *Recorder) Frames(runID uint, tick uint64) ([]VehicleFrame, error) {
	var frames []VehicleFrame
	err := r.db.Where("run_id = ? AND tick = ?", runID, tick).Order("vehicle_id").Find(&frames).Error
	if err != nil {
		return nil, fmt.Errorf("loading vehicle frames: %w", err)
	}
	return frames, nil
}

// Signals returns the signal states recorded for one tick of a run.
func (r *Recorder) Signals(runID uint, tick uint64) ([]SignalFrame, error) {
	var frames []SignalFrame
	err := r.db.Where("run_id = ? AND tick = ?", runID, tick).Order("node_id").Find(&frames).Error
	if err != nil {
		return nil, fmt.Errorf("loading signal frames: %w", err)
	}
	return frames, nil
}

// Close releases the database connection.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
