package interfaces

import "context"

// Machine describes one machine of a control-plane app, as returned by
// ListMachines.
type Machine struct {
	ID    string
	State string // e.g. "started", "stopped"
}

// ControlPlane is the machine control-plane client (assumed: list
// machines of an app, start a machine by id). Implemented in
// internal/controlplane against a Fly.io-Machines-shaped REST API.
type ControlPlane interface {
	ListMachines(ctx context.Context, app string) ([]Machine, error)
	StartMachine(ctx context.Context, app, machineID string) error
}

// Sandbox is the external, black-box code execution collaborator.
// Language-specific compile/run command assembly and kernel-level
// isolation are out of scope — this interface is the whole contract.
type Sandbox interface {
	Execute(ctx context.Context, code, filename string, language string) (*ExecutionResult, error)
}

// ExecutionResult is the sandbox's raw outcome, before the worker loop
// wraps it into models.Result and attaches timing.
type ExecutionResult struct {
	Success      bool
	Stdout       string
	Stderr       string
	ExitCode     int
	TimedOut     bool
	MemoryUsedKB int64
}
