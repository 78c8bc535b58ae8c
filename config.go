package cityflow

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the engine. Zero config is not usable, start from DefaultConfig.
type Config struct {
	Epoch   EpochConfig    `yaml:"epoch" json:"epoch"`
	Cost    CostConfig     `yaml:"cost" json:"cost"`
	Planner PlannerConfig  `yaml:"planner" json:"planner"`
	Transit TransitConfig  `yaml:"transit" json:"transit"`
	Demand  DemandConfig   `yaml:"demand" json:"demand"`
	Graph   GraphConfig    `yaml:"graph" json:"graph"`
	Routes  []TransitRoute `yaml:"routes,omitempty" json:"routes,omitempty"`
}

type EpochConfig struct {
	// Decay is share of volume surviving into the next epoch
	Decay float64 `yaml:"decay" json:"decay"`
	// TripWeight is volume (veh/h) a single routed trip adds to each road edge of its path
	TripWeight float64 `yaml:"trip_weight" json:"trip_weight"`
	// Workers in batch routing pool
	Workers int `yaml:"workers" json:"workers"`
}

type CostConfig struct {
	Alpha float64 `yaml:"alpha" json:"alpha"`
	Beta  float64 `yaml:"beta" json:"beta"`
}

type PlannerConfig struct {
	// MaxSpeed (km/h) is lower bound of speed used by A* heuristic
	MaxSpeed         float64       `yaml:"max_speed" json:"max_speed"`
	MaxExpansions    int           `yaml:"max_expansions" json:"max_expansions"`
	MaxQueryDuration time.Duration `yaml:"max_query_duration" json:"max_query_duration"`
	// Contraction enables contraction hierarchy for drive-only queries longer than ContractionMinDistance (meters).
	// Answers have the same cost as A* ones, but equal cost paths are not ordered by edge count and last edge,
	// so results are deterministic per snapshot without being identical to the planner's.
	Contraction            bool    `yaml:"contraction" json:"contraction"`
	ContractionMinDistance float64 `yaml:"contraction_min_distance" json:"contraction_min_distance"`
}

type TransitConfig struct {
	WalkSpeed          float64 `yaml:"walk_speed" json:"walk_speed"`
	CatchmentRadius    float64 `yaml:"catchment_radius" json:"catchment_radius"`
	TransferRadius     float64 `yaml:"transfer_radius" json:"transfer_radius"`
	TransferPenalty    float64 `yaml:"transfer_penalty" json:"transfer_penalty"`
	HubTransferPenalty float64 `yaml:"hub_transfer_penalty" json:"hub_transfer_penalty"`
}

type DemandConfig struct {
	Elasticity    float64 `yaml:"elasticity" json:"elasticity"`
	HorizonEpochs int     `yaml:"horizon_epochs" json:"horizon_epochs"`
}

type GraphConfig struct {
	// FullRebuildThreshold is fraction of nodes with touched rows above which CSR is rebuilt from scratch
	FullRebuildThreshold float64 `yaml:"full_rebuild_threshold" json:"full_rebuild_threshold"`
}

// DefaultConfig returns configuration with documented defaults
func DefaultConfig() Config {
	return Config{
		Epoch: EpochConfig{
			Decay:      0.8,
			TripWeight: 1.0,
			Workers:    4,
		},
		Cost: CostConfig{
			Alpha: DEFAULT_BPR_ALPHA,
			Beta:  DEFAULT_BPR_BETA,
		},
		Planner: PlannerConfig{
			MaxSpeed:               130,
			MaxExpansions:          DEFAULT_MAX_EXPANSIONS,
			MaxQueryDuration:       2 * time.Second,
			Contraction:            false,
			ContractionMinDistance: 5000,
		},
		Transit: TransitConfig{
			WalkSpeed:          1.4,
			CatchmentRadius:    800,
			TransferRadius:     200,
			TransferPenalty:    180,
			HubTransferPenalty: 60,
		},
		Demand: DemandConfig{
			Elasticity:    DEFAULT_ELASTICITY,
			HorizonEpochs: DEFAULT_HORIZON_EPOCHS,
		},
		Graph: GraphConfig{
			FullRebuildThreshold: 0.1,
		},
	}
}

// LoadConfig reads YAML file on top of defaults
func LoadConfig(fname string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(fname)
	if err != nil {
		return cfg, errors.Wrap(err, "Can't read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "Can't parse config file")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "Bad configuration")
	}
	return cfg, nil
}

// Validate checks ranges of every parameter
func (cfg *Config) Validate() error {
	switch {
	case cfg.Epoch.Decay < 0 || cfg.Epoch.Decay > 1:
		return fmt.Errorf("epoch.decay must be in [0, 1], got %v", cfg.Epoch.Decay)
	case cfg.Epoch.TripWeight < 0:
		return fmt.Errorf("epoch.trip_weight must be non-negative, got %v", cfg.Epoch.TripWeight)
	case cfg.Epoch.Workers < 1:
		return fmt.Errorf("epoch.workers must be positive, got %d", cfg.Epoch.Workers)
	case cfg.Cost.Alpha < 0 || cfg.Cost.Beta < 0:
		return fmt.Errorf("cost.alpha and cost.beta must be non-negative")
	case cfg.Planner.MaxSpeed <= 0:
		return fmt.Errorf("planner.max_speed must be positive, got %v", cfg.Planner.MaxSpeed)
	case cfg.Planner.MaxExpansions < 0 || cfg.Planner.MaxQueryDuration < 0:
		return fmt.Errorf("planner budget must be non-negative")
	case cfg.Transit.WalkSpeed <= 0:
		return fmt.Errorf("transit.walk_speed must be positive, got %v", cfg.Transit.WalkSpeed)
	case cfg.Transit.CatchmentRadius < 0 || cfg.Transit.TransferRadius < 0:
		return fmt.Errorf("transit radii must be non-negative")
	case cfg.Transit.TransferPenalty < 0 || cfg.Transit.HubTransferPenalty < 0:
		return fmt.Errorf("transit penalties must be non-negative")
	case cfg.Demand.Elasticity < 0 || cfg.Demand.Elasticity > 1:
		return fmt.Errorf("demand.elasticity must be in [0, 1], got %v", cfg.Demand.Elasticity)
	case cfg.Demand.HorizonEpochs < 1:
		return fmt.Errorf("demand.horizon_epochs must be positive, got %d", cfg.Demand.HorizonEpochs)
	case cfg.Graph.FullRebuildThreshold < 0:
		return fmt.Errorf("graph.full_rebuild_threshold must be non-negative")
	}
	for i := range cfg.Routes {
		if err := cfg.Routes[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) transitParams() TransitParams {
	return TransitParams{
		WalkSpeed:          cfg.Transit.WalkSpeed,
		CatchmentRadius:    cfg.Transit.CatchmentRadius,
		TransferRadius:     cfg.Transit.TransferRadius,
		TransferPenalty:    cfg.Transit.TransferPenalty,
		HubTransferPenalty: cfg.Transit.HubTransferPenalty,
	}
}
