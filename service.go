// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"context"
	"time"
)

// Result is the outcome of [*Service.Execute].
type Result struct {
	// Success is true when the command was delivered and the reply
	// did not start with "error".
	Success bool

	// Output is the server reply or, for failures below the protocol,
	// "error: " followed by the cause.
	Output string

	// Err is nil on success and an [*Error] otherwise.
	Err error
}

// Executor runs a single command.
type Executor interface {
	Execute(ctx context.Context, cmd Command) Result
}

// Service runs commands against one control socket.
//
// Construct using [NewService]. By default each command uses its own
// connection. Service is safe for concurrent use.
type Service struct {
	config *Config
	opts   []Option
	o      *options
}

var _ Executor = &Service{}

// WithPool makes a [*Service] draw connections from pool.
func WithPool(pool *Pool) Option {
	return func(opts *options) {
		opts.pool = pool
	}
}

// WithProbe makes [*Service.CheckHealth] also resolve a name through probe.
func WithProbe(probe *ResolutionProbe) Option {
	return func(opts *options) {
		opts.probe = probe
	}
}

// NewService creates a new [*Service].
func NewService(config *Config, opts ...Option) *Service {
	return &Service{config: config, opts: opts, o: newOptions(opts...)}
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Execute connects, sends cmd, reads the reply, and disconnects.
//
// Every failure is reported through the returned [Result]. A usage error
// is a bug in the caller or in this package and causes a panic instead.
func (s *Service) Execute(ctx context.Context, cmd Command) Result {
	t0 := time.Now()
	client, err := s.acquire(ctx)
	if err != nil {
		return s.failure(cmd, t0, err)
	}
	resp, err := client.Send(ctx, cmd)
	s.release(client, err == nil)
	if err != nil {
		return s.failure(cmd, t0, err)
	}
	s.o.logger.Info("executeDone", "command", cmd.String(), "success", resp.Success,
		"t0", t0, "t", time.Now(), "err", errString(resp.Err()))
	return Result{Success: resp.Success, Output: resp.Text, Err: resp.Err()}
}

func (s *Service) acquire(ctx context.Context) (*Client, error) {
	if s.o.pool != nil {
		return s.o.pool.Checkout(ctx, s.config, s.opts...)
	}
	client := NewClient(s.config, s.opts...)
	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (s *Service) release(client *Client, healthy bool) {
	if s.o.pool != nil {
		s.o.pool.Checkin(client, healthy)
		return
	}
	client.Close()
}

func (s *Service) failure(cmd Command, t0 time.Time, err error) Result {
	if IsUsageError(err) {
		panic(err)
	}
	s.o.logger.Error("executeDone", "command", cmd.String(), "success", false,
		"t0", t0, "t", time.Now(), "err", err.Error(), "errKind", KindOf(err).String())
	return Result{Success: false, Output: "error: " + err.Error(), Err: err}
}

// ExecuteCommand runs the command made of args, attaching payload when the
// command reads one.
func (s *Service) ExecuteCommand(ctx context.Context, args []string, payload string) (bool, string) {
	cmd := NewCommand(args...)
	if payload != "" {
		cmd = cmd.WithPayload([]byte(payload))
	}
	result := s.Execute(ctx, cmd)
	return result.Success, result.Output
}

// TestConnection runs the status command and reports whether it succeeded.
func (s *Service) TestConnection(ctx context.Context) bool {
	success, output := s.ExecuteCommand(ctx, []string{"status"}, "")
	if !success {
		s.o.logger.Warn("connection test failed", "output", output)
		return false
	}
	s.o.logger.Info("connection test successful")
	return true
}
