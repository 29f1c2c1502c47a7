package domain

import (
	"strings"
	"time"
)

const (
	DefaultPetName = "Tama"

	MaxGauge = 100.0
	MinGauge = 0.0
)

// Stage is the life phase of a pet, derived from its age only.
type Stage string

const (
	StageEgg    Stage = "egg"
	StageBaby   Stage = "baby"
	StageChild  Stage = "child"
	StageTeen   Stage = "teen"
	StageAdult  Stage = "adult"
	StageSenior Stage = "senior"
)

// Rank orders stages from egg (0) to senior (5). Unknown stages rank -1.
func (s Stage) Rank() int {
	switch s {
	case StageEgg:
		return 0
	case StageBaby:
		return 1
	case StageChild:
		return 2
	case StageTeen:
		return 3
	case StageAdult:
		return 4
	case StageSenior:
		return 5
	default:
		return -1
	}
}

// Pet is a complete snapshot of the pet. It is a plain value: copies never alias.
// Timestamps are epoch milliseconds, age is in hours.
type Pet struct {
	Name       string  `json:"name"`
	Hunger     float64 `json:"hunger"`
	Happiness  float64 `json:"happiness"`
	Health     float64 `json:"health"`
	Age        float64 `json:"age"`
	BirthTime  int64   `json:"birthTime"`
	Stage      Stage   `json:"stage"`
	IsAlive    bool    `json:"isAlive"`
	LastUpdate int64   `json:"lastUpdate"`
}

// NewPet hatches a fresh egg. A blank name falls back to DefaultPetName.
func NewPet(name string, now time.Time) Pet {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultPetName
	}
	nowMs := now.UnixMilli()
	return Pet{
		Name:       name,
		Hunger:     MaxGauge,
		Happiness:  MaxGauge,
		Health:     MaxGauge,
		Age:        0,
		BirthTime:  nowMs,
		Stage:      StageEgg,
		IsAlive:    true,
		LastUpdate: nowMs,
	}
}

// Clamp forces all gauges into [MinGauge, MaxGauge].
func (p Pet) Clamp() Pet {
	p.Hunger = clampGauge(p.Hunger)
	p.Happiness = clampGauge(p.Happiness)
	p.Health = clampGauge(p.Health)
	return p
}

func clampGauge(v float64) float64 {
	return min(MaxGauge, max(MinGauge, v))
}
