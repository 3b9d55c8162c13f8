package firmware

import (
	"context"

	"golang.org/x/sync/errgroup"

	"dualcore-go/services/config"
)

// System is both cores over one board.
type System struct {
	Board *Board
	P     *PCore
	A     *ACore
}

func New(hw Hardware, cfg config.Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := NewBoard()
	if err != nil {
		return nil, err
	}
	p, err := NewPCore(b, hw, cfg)
	if err != nil {
		return nil, err
	}
	a, err := NewACore(b, cfg, hw.Console)
	if err != nil {
		return nil, err
	}
	return &System{Board: b, P: p, A: a}, nil
}

// Run runs both cores until ctx ends; the first core error stops the other.
func (s *System) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.A.Run(ctx) })
	g.Go(func() error { return s.P.Run(ctx) })
	return g.Wait()
}
