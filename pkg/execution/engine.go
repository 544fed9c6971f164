// Package execution invokes loaded plugins for single inputs and chains
// multiple plugins so each step's output feeds the next step's input.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/animus-host/animus/pkg/events"
	"github.com/animus-host/animus/pkg/lifecycle"
	"github.com/animus-host/animus/pkg/monitor"
	"github.com/animus-host/animus/pkg/plugin"
	"github.com/animus-host/animus/pkg/security"
)

// Engine executes plugins through the lifecycle manager's registry, wrapped
// by the performance monitor and guarded by the security evaluator.
type Engine struct {
	manager   *lifecycle.Manager
	evaluator *security.Evaluator
	monitor   *monitor.Monitor
	emitter   *events.Emitter
	log       *logrus.Logger
}

// NewEngine creates an execution engine.
func NewEngine(mgr *lifecycle.Manager, eval *security.Evaluator, mon *monitor.Monitor, emitter *events.Emitter, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		manager:   mgr,
		evaluator: eval,
		monitor:   mon,
		emitter:   emitter,
		log:       log,
	}
}

// ExecutedPayload is carried by the executed event.
type ExecutedPayload struct {
	Input    *plugin.Input
	Output   *plugin.Output
	Duration time.Duration
}

// Execute invokes one plugin's processing entry point for a single input.
//
// Guards: plugin.ErrNotFound for unknown ids, plugin.ErrNotActive when the
// plugin is disabled or not active. The input's declared required permission
// (if any) is checked against the plugin's policy before invocation. Success
// updates the execution count and rolling average; failure updates the error
// count, and the plugin's status is left unchanged: one bad input does not
// disable a plugin.
func (e *Engine) Execute(ctx context.Context, id string, in *plugin.Input) (*plugin.Output, error) {
	impl, err := e.manager.Executable(id)
	if err != nil {
		return nil, err
	}
	if in == nil {
		in = &plugin.Input{Timestamp: time.Now()}
	}

	e.monitor.StartExecution(id)
	started := time.Now()

	var out *plugin.Output
	execErr := func() error {
		if in.RequiredPermission != "" && !e.evaluator.CheckPermission(id, in.RequiredPermission) {
			return fmt.Errorf("permission %q not granted", in.RequiredPermission)
		}
		if err := e.evaluator.EnforceResourceLimits(id); err != nil {
			return fmt.Errorf("resource limits: %w", err)
		}
		out, err = safeExecute(ctx, impl, in)
		return err
	}()

	duration := time.Since(started)
	sample := e.monitor.EndExecution(id, duration, payloadSize(in.Data), outputSize(out), execErr != nil)
	e.manager.RecordExecution(id, sample, execErr != nil)

	if execErr != nil {
		wrapped := &plugin.ExecutionError{PluginID: id, Err: execErr}
		e.emitter.Emit(events.Event{Type: events.PluginError, PluginID: id, Err: wrapped})
		e.log.WithField("plugin", id).WithError(execErr).Error("plugin execution failed")
		return nil, wrapped
	}

	if out == nil {
		out = &plugin.Output{Type: in.Type, Success: true}
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	if out.Performance == nil {
		out.Performance = &sample
	}

	e.emitter.Emit(events.Event{
		Type:     events.PluginExecuted,
		PluginID: id,
		Payload:  ExecutedPayload{Input: in, Output: out, Duration: duration},
	})
	return out, nil
}

// ExecuteChain runs plugins strictly in the given order, feeding each step's
// output forward as the next step's input while preserving the original
// context and request id. The first failure aborts the chain with a
// *plugin.ChainError naming the failing plugin; no partial results are
// returned. An empty chain returns an empty result list.
func (e *Engine) ExecuteChain(ctx context.Context, ids []string, in *plugin.Input) ([]*plugin.Output, error) {
	outputs := make([]*plugin.Output, 0, len(ids))
	if len(ids) == 0 {
		return outputs, nil
	}
	if in == nil {
		in = &plugin.Input{Timestamp: time.Now()}
	}

	cur := in
	for step, id := range ids {
		out, err := e.Execute(ctx, id, cur)
		if err != nil {
			return nil, &plugin.ChainError{PluginID: id, Step: step, Err: err}
		}
		outputs = append(outputs, out)
		cur = plugin.NextInput(cur, out)
	}
	return outputs, nil
}

// safeExecute invokes Execute with panic recovery so a panicking plugin is
// reported as an execution failure instead of crashing the host.
func safeExecute(ctx context.Context, p plugin.Plugin, in *plugin.Input) (out *plugin.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("execute panicked: %v", r)
		}
	}()
	return p.Execute(ctx, in)
}

// payloadSize approximates a payload's wire size. Shape validation is the
// plugin's responsibility; malformed payloads pass through unchanged.
func payloadSize(data any) int {
	if data == nil {
		return 0
	}
	b, err := json.Marshal(data)
	if err != nil {
		return 0
	}
	return len(b)
}

func outputSize(out *plugin.Output) int {
	if out == nil {
		return 0
	}
	return payloadSize(out.Data)
}
