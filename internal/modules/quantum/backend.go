package quantum

import (
	"context"
	"fmt"

	"github.com/aristath/qportfolio/internal/domain"
)

// GateKind identifies a circuit instruction
type GateKind int

const (
	GateH GateKind = iota
	GateRX
	GateRY
	GateRZ
	GateCNOT
	GateCost // exp(-i·Angle·C) for the circuit's diagonal cost operator C
)

// Gate is one circuit instruction
type Gate struct {
	Kind    GateKind
	Target  int
	Control int
	Angle   float64
}

// Circuit is an ordered gate list over Qubits qubits, starting from |0…0⟩
type Circuit struct {
	Cost   []float64
	Gates  []Gate
	Qubits int
}

// NewCircuit creates an empty circuit
func NewCircuit(qubits int) *Circuit {
	return &Circuit{Qubits: qubits}
}

// WithCost attaches the diagonal operator used by GateCost
func (c *Circuit) WithCost(diag []float64) *Circuit {
	c.Cost = diag
	return c
}

// H appends a Hadamard on qubit q
func (c *Circuit) H(q int) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateH, Target: q})
	return c
}

// RX appends a rotation by theta about X on qubit q
func (c *Circuit) RX(q int, theta float64) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateRX, Target: q, Angle: theta})
	return c
}

// RY appends a rotation by theta about Y on qubit q
func (c *Circuit) RY(q int, theta float64) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateRY, Target: q, Angle: theta})
	return c
}

// RZ appends a rotation by theta about Z on qubit q
func (c *Circuit) RZ(q int, theta float64) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateRZ, Target: q, Angle: theta})
	return c
}

// CNOT flips target when control is 1
func (c *Circuit) CNOT(control, target int) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateCNOT, Control: control, Target: target})
	return c
}

// CostLayer appends exp(-i·gamma·C)
func (c *Circuit) CostLayer(gamma float64) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateCost, Angle: gamma})
	return c
}

// Backend executes circuits
type Backend interface {
	Name() string
	Available() bool
	Execute(ctx context.Context, c *Circuit) (*StateVector, error)
}

// Simulator is the in-process state-vector backend
type Simulator struct {
	maxQubits int
}

// NewSimulator creates a simulator accepting circuits up to maxQubits wide
func NewSimulator(maxQubits int) *Simulator {
	if maxQubits <= 0 || maxQubits > MaxSimulatedQubits {
		maxQubits = MaxSimulatedQubits
	}
	return &Simulator{maxQubits: maxQubits}
}

// Name implements Backend
func (s *Simulator) Name() string { return "statevector_simulator" }

// Available implements Backend
func (s *Simulator) Available() bool { return true }

// Execute runs c from |0…0⟩ and returns the final state
func (s *Simulator) Execute(ctx context.Context, c *Circuit) (*StateVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Qubits > s.maxQubits {
		return nil, fmt.Errorf("circuit needs %d qubits, simulator supports %d", c.Qubits, s.maxQubits)
	}
	state, err := NewStateVector(c.Qubits)
	if err != nil {
		return nil, err
	}

	for i, g := range c.Gates {
		if g.Target < 0 || g.Target >= c.Qubits {
			return nil, fmt.Errorf("gate %d: target qubit %d out of range", i, g.Target)
		}
		switch g.Kind {
		case GateH:
			state.H(g.Target)
		case GateRX:
			state.RX(g.Target, g.Angle)
		case GateRY:
			state.RY(g.Target, g.Angle)
		case GateRZ:
			state.RZ(g.Target, g.Angle)
		case GateCNOT:
			if g.Control < 0 || g.Control >= c.Qubits || g.Control == g.Target {
				return nil, fmt.Errorf("gate %d: invalid control qubit %d", i, g.Control)
			}
			state.CNOT(g.Control, g.Target)
		case GateCost:
			if len(c.Cost) != 1<<c.Qubits {
				return nil, fmt.Errorf("gate %d: cost operator has %d entries, want %d", i, len(c.Cost), 1<<c.Qubits)
			}
			state.Phase(c.Cost, g.Angle)
		default:
			return nil, fmt.Errorf("gate %d: unknown kind %d", i, g.Kind)
		}
	}
	return state, nil
}

// UnavailableBackend stands in when no quantum backend is configured
type UnavailableBackend struct {
	Reason string
}

// Name implements Backend
func (u UnavailableBackend) Name() string { return "unavailable" }

// Available implements Backend
func (u UnavailableBackend) Available() bool { return false }

// Execute always fails with a BackendUnavailableError
func (u UnavailableBackend) Execute(context.Context, *Circuit) (*StateVector, error) {
	return nil, &domain.BackendUnavailableError{Reason: u.Reason}
}
