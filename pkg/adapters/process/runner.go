// Package process captures microphone audio by running a local recorder
// command and streaming its stdout.
package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/aretw0/narrate/internal/logging"
)

// Source starts a Recorder once per listening session.
type Source struct {
	rec       Recorder
	baseDir   string
	waitDelay time.Duration
	logger    *slog.Logger
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithBaseDir sets the working directory of the recorder.
func WithBaseDir(dir string) SourceOption {
	return func(s *Source) { s.baseDir = dir }
}

// WithWaitDelay bounds how long a stopped recorder may take to exit before it is killed.
func WithWaitDelay(d time.Duration) SourceOption {
	return func(s *Source) { s.waitDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SourceOption {
	return func(s *Source) { s.logger = l }
}

// NewSource creates a Source for rec.
func NewSource(rec Recorder, opts ...SourceOption) *Source {
	s := &Source{rec: rec, waitDelay: 2 * time.Second, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts the recorder. Closing the returned reader interrupts the process
// and waits for it to exit.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, s.rec.Command, s.rec.Args...)
	cmd.Dir = s.baseDir
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = s.waitDelay

	env := cmd.Environ()
	for k, v := range s.rec.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder %s: %w", s.rec.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("recorder %s: start: %w", s.rec.Name, err)
	}
	s.logger.Debug("recorder started", "name", s.rec.Name, "pid", cmd.Process.Pid)
	return &stream{ReadCloser: out, cmd: cmd, stderr: &stderr, name: s.rec.Name, logger: s.logger}, nil
}

type stream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	name   string
	logger *slog.Logger

	once sync.Once
	err  error
}

func (s *stream) Close() error {
	s.once.Do(func() {
		if s.cmd.ProcessState == nil {
			_ = s.cmd.Process.Signal(os.Interrupt)
		}
		err := s.cmd.Wait()
		if err != nil && s.cmd.ProcessState != nil && !s.cmd.ProcessState.Exited() {
			// Stopped by our own signal.
			err = nil
		}
		if err != nil {
			s.err = fmt.Errorf("recorder %s: %w: %s", s.name, err, bytes.TrimSpace(s.stderr.Bytes()))
		}
		s.logger.Debug("recorder stopped", "name", s.name, "err", s.err)
	})
	return s.err
}
