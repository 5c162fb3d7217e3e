package ibis

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// tickInterval is how often the refresh loop re-evaluates every
// address's current content.
const tickInterval = 100 * time.Millisecond

// ServerConfig bundles everything needed to stand up a broker process.
type ServerConfig struct {
	SerialDevice   string
	BaudRate       int
	ListenAddress  string
	RefreshTimeout time.Duration
	StateFile      string
	GPIOPins       map[int]GPIOPin
	Selftest       bool
}

// Server owns the serial link, controller, and TCP dispatcher for one
// broker process, and runs the refresh loop.
type Server struct {
	master     *Master
	controller *Controller
	dispatcher *Dispatcher
	logger     *log.Logger
	cfg        ServerConfig
}

// NewServer opens the serial link, sets up a stop-indicator driver for any
// configured GPIO pins (its lines are requested on first use), builds
// the controller (restoring a prior state file if one exists), and
// wires up the dispatcher. The caller still has to call Run.
func NewServer(cfg ServerConfig, logger *log.Logger) (*Server, error) {
	serial, err := OpenSerialLink(cfg.SerialDevice, cfg.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("ibis: open serial link: %w", err)
	}

	var gpio *StopIndicatorDriver
	if len(cfg.GPIOPins) > 0 {
		gpio = NewStopIndicatorDriver(cfg.GPIOPins)
	}

	master := NewMaster(serial, gpio)
	controller := NewController(master, logger, cfg.RefreshTimeout, cfg.StateFile)

	if cfg.StateFile != "" {
		snap, err := LoadSnapshot(cfg.StateFile)
		if err != nil {
			logger.Warn("could not load state file, starting empty", "path", cfg.StateFile, "err", err)
		} else {
			controller.LoadSnapshot(snap)
		}
	}

	return &Server{
		master:     master,
		controller: controller,
		dispatcher: NewDispatcher(controller, logger),
		logger:     logger,
		cfg:        cfg,
	}, nil
}

// Run blocks, driving the refresh loop and serving control connections,
// until ctx is canceled. It always attempts a final state save and
// serial/GPIO teardown before returning, even on error.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Selftest {
		RunSelftest(ctx, s.master, s.logger, nil)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.dispatcher.Serve(ctx, s.cfg.ListenAddress)
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			s.controller.Tick()
		}
	}

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-time.After(time.Second):
		s.logger.Warn("dispatcher did not shut down promptly")
	}

	if err := s.controller.Close(); err != nil {
		s.logger.Error("shutdown: close master", "err", err)
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
