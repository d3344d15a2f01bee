package provider

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SimulationOptions tune the test double. Failure injection is an explicit
// opt-in; the default is deterministic success.
type SimulationOptions struct {
	Fail bool `mapstructure:"fail"`
}

// Simulation is the no-network adapter used when no real provider is
// configured. It is the default operating mode.
type Simulation struct {
	opts   SimulationOptions
	logger zerolog.Logger
}

// NewSimulation constructs the simulation adapter.
func NewSimulation(opts SimulationOptions, logger zerolog.Logger) *Simulation {
	return &Simulation{
		opts:   opts,
		logger: logger.With().Str("component", "provider_simulation").Logger(),
	}
}

func (s *Simulation) Name() string { return NameSimulation }

func (s *Simulation) MaxMessageLength() int { return 0 }

// Send reports a synthetic outcome without touching the network.
func (s *Simulation) Send(ctx context.Context, recipient, message string) Result {
	if s.opts.Fail {
		return Result{Success: false, ErrorDetail: "simulated failure"}
	}

	id := "sim_" + uuid.NewString()
	raw, _ := json.Marshal(map[string]any{
		"simulated":  true,
		"phone":      recipient,
		"message_id": id,
	})

	s.logger.Debug().Str("phone", recipient).Str("message_id", id).Msg("simulated send")
	return Result{Success: true, MessageID: id, Response: raw}
}

var _ Adapter = (*Simulation)(nil)
