package server

import "context"

// Server is a long-running component that blocks in Start until it stops.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
