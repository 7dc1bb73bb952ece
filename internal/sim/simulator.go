// Package sim drives a virtual agent back and forth along X and writes the
// agent state file the streamer watches.
package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeusync/regionstream/internal/core/observability/log"
	"github.com/zeusync/regionstream/internal/scene"
)

var ErrNoPath = errors.New("sim: output path is required")

// Center is a region centre on the X axis.
type Center struct {
	ID string
	X  float64
}

type Config struct {
	Path    string
	Centers []Center
	// Speed in units per second.
	Speed float64
	Step  time.Duration
	// Bound is the |x| at which the agent turns around.
	Bound        float64
	Start        scene.Vec3
	ShowDistance float64
	HideDistance float64
	// Atomic writes go through a temp file and a rename.
	Atomic bool
}

func DefaultConfig() Config {
	return Config{
		Path: "agent_state.json",
		Centers: []Center{
			{ID: "C", X: -1500},
			{ID: "A", X: 0},
			{ID: "B", X: 1500},
		},
		Speed:        100,
		Step:         50 * time.Millisecond,
		Bound:        1500,
		Start:        scene.Vec3{Z: 150},
		ShowDistance: 1500,
		HideDistance: 2500,
		Atomic:       true,
	}
}

// RegionAction is one entry of the written "regions" object.
type RegionAction struct {
	ID     string
	Action string
}

// Regions marshals as a JSON object in slice order.
type Regions []RegionAction

func (r Regions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ra := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ra.ID)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(ra.Action)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r Regions) String() string {
	parts := make([]string, 0, len(r))
	for _, ra := range r {
		parts = append(parts, ra.ID+":"+ra.Action)
	}
	return strings.Join(parts, ", ")
}

// Payload is the agent state file body.
type Payload struct {
	Version        int        `json:"version"`
	Regions        Regions    `json:"regions"`
	RemoveUnlisted bool       `json:"remove_unlisted"`
	UAV            scene.Vec3 `json:"uav"`
}

type Simulator struct {
	config    Config
	logger    log.Log
	pos       scene.Vec3
	direction float64
}

func New(config Config, logger log.Log) (*Simulator, error) {
	if config.Path == "" {
		return nil, ErrNoPath
	}
	if config.Step <= 0 {
		return nil, fmt.Errorf("sim: step must be positive, got %s", config.Step)
	}
	if config.HideDistance < config.ShowDistance {
		return nil, fmt.Errorf("sim: hide distance %.1f below show distance %.1f", config.HideDistance, config.ShowDistance)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Simulator{
		config:    config,
		logger:    logger.With(log.String("component", "sim")),
		pos:       config.Start,
		direction: 1,
	}, nil
}

func (s *Simulator) Position() scene.Vec3 { return s.pos }

// Advance moves the agent one step and turns it around at the bounds.
func (s *Simulator) Advance() {
	s.pos.X += s.config.Speed * s.direction * s.config.Step.Seconds()
	switch {
	case s.pos.X > s.config.Bound:
		s.pos.X = s.config.Bound
		s.direction = -1
	case s.pos.X < -s.config.Bound:
		s.pos.X = -s.config.Bound
		s.direction = 1
	}
}

// Declare builds the payload for the current position. Regions beyond the
// hide distance are left out so the streamer unloads them.
func (s *Simulator) Declare() Payload {
	regions := make(Regions, 0, len(s.config.Centers))
	for _, c := range s.config.Centers {
		d := math.Abs(s.pos.X - c.X)
		switch {
		case d <= s.config.ShowDistance:
			regions = append(regions, RegionAction{ID: c.ID, Action: "show"})
		case d <= s.config.HideDistance:
			regions = append(regions, RegionAction{ID: c.ID, Action: "hide"})
		}
	}
	return Payload{
		Version:        1,
		Regions:        regions,
		RemoveUnlisted: true,
		UAV:            scene.Vec3{X: round2(s.pos.X), Y: round2(s.pos.Y), Z: round2(s.pos.Z)},
	}
}

// Step advances, then writes the new payload.
func (s *Simulator) Step() (Payload, error) {
	s.Advance()
	p := s.Declare()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return p, err
	}
	if err = WriteFile(s.config.Path, data, s.config.Atomic); err != nil {
		return p, err
	}
	s.logger.Info("Agent step", log.Float64("x", s.pos.X), log.String("regions", p.Regions.String()))
	return p, nil
}

// Run steps on every tick until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("Agent simulation started",
		log.String("path", s.config.Path),
		log.Float64("speed", s.config.Speed),
		log.Duration("step", s.config.Step),
	)
	ticker := time.NewTicker(s.config.Step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Agent simulation stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Step(); err != nil {
				return err
			}
		}
	}
}

// WriteFile writes data to path. With atomic set, readers never observe a partial file.
func WriteFile(path string, data []byte, atomic bool) error {
	if !atomic {
		return os.WriteFile(path, data, 0o644)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err = os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err = os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
