// Package lifecycle coordinates readiness reporting and staged shutdown of the server's resources.
package lifecycle

import (
	"context"
	"errors"
)

// ErrDraining is reported by readiness once shutdown has begun.
var ErrDraining = errors.New("service is draining")

// Stage orders shutdown hooks. Lower stages finish before higher ones start.
type Stage int

const (
	// StageWorkers stops background consumers that still write to storage.
	StageWorkers Stage = iota
	// StageClients closes producers such as queue clients.
	StageClients
	// StageStorage closes database and cache connections.
	StageStorage
)

func (s Stage) String() string {
	switch s {
	case StageWorkers:
		return "workers"
	case StageClients:
		return "clients"
	case StageStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Hook is a named release function run during shutdown.
type Hook struct {
	Stage Stage
	Name  string
	Fn    func(ctx context.Context) error
}
