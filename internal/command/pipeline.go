package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/bridge"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/guard"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/models"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/store"
)

// maxCommandLength bounds the command string accepted by ExecuteCommand.
const maxCommandLength = 1000

// Sentinel errors for pipeline outcomes. Blocked is a policy denial and is
// distinct from execution failure; the approval errors are distinct from both.
var (
	ErrYoloDisabled     = errors.New("command: yolo mode not enabled for this conversation")
	ErrBlocked          = errors.New("command: blocked by policy")
	ErrApprovalRequired = errors.New("command: approval token required")
	ErrApprovalInvalid  = errors.New("command: approval token invalid, expired, or already used")
)

// convExec is the per-conversation execution configuration.
type convExec struct {
	mode     string
	executor *Executor
}

// Pipeline orchestrates the gates: static validation, approval, then
// sandboxed execution, broadcasting every outcome as a system message.
type Pipeline struct {
	mu        sync.Mutex
	engine    *bridge.Engine
	guard     *guard.Guard
	executors map[string]*convExec
}

// NewPipeline creates a Pipeline over a messaging engine and an approval guard.
func NewPipeline(engine *bridge.Engine, g *guard.Guard) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("command: engine is required")
	}
	if g == nil {
		return nil, fmt.Errorf("command: guard is required")
	}
	return &Pipeline{
		engine:    engine,
		guard:     g,
		executors: make(map[string]*convExec),
	}, nil
}

// EnableOpts configures command execution for a conversation.
type EnableOpts struct {
	Workspace      string
	TimeoutSeconds int
	Sandbox        bool
	SandboxImage   string
}

// ExecConfig reports the execution configuration applied to a conversation.
type ExecConfig struct {
	Mode      string
	Workspace string
	Timeout   time.Duration
	Sandbox   bool
}

// EnableYolo configures an executor for the conversation, gated on session
// authentication. The mode is fixed until re-enabled.
func (p *Pipeline) EnableYolo(convID, sessionID, token, mode string, opts EnableOpts) (*ExecConfig, error) {
	if !ValidMode(mode) {
		return nil, fmt.Errorf("%w: mode must be one of safe, restricted, yolo", bridge.ErrValidation)
	}
	if !p.engine.Verify(convID, sessionID, token) {
		p.audit(convID, sessionID, "auth_failed", map[string]interface{}{
			"operation": "enable_yolo_mode",
		})
		return nil, bridge.ErrAuthentication
	}

	workspace := opts.Workspace
	if workspace == "" {
		if wd, err := os.Getwd(); err == nil {
			workspace = wd
		}
	}
	timeout := time.Duration(opts.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	p.mu.Lock()
	p.executors[convID] = &convExec{
		mode: mode,
		executor: &Executor{
			Workspace:    workspace,
			Timeout:      timeout,
			Sandbox:      opts.Sandbox,
			SandboxImage: opts.SandboxImage,
		},
	}
	p.mu.Unlock()

	p.audit(convID, sessionID, "yolo_mode_change", map[string]interface{}{
		"mode":      mode,
		"workspace": workspace,
		"timeout":   timeout.Seconds(),
		"sandbox":   opts.Sandbox,
	})

	return &ExecConfig{Mode: mode, Workspace: workspace, Timeout: timeout, Sandbox: opts.Sandbox}, nil
}

// Enabled reports whether the conversation has an executor configured.
func (p *Pipeline) Enabled(convID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.executors[convID]
	return ok
}

// ExecOpts carries the optional execution parameters.
type ExecOpts struct {
	// ModeOverride validates against a different mode than the one the
	// conversation was enabled with, for this call only.
	ModeOverride string
	// ApprovalToken is the single-use credential consumed by the guard.
	ApprovalToken string
	// DryRun returns the validation verdict without executing anything.
	DryRun bool
}

// ExecuteCommand runs one command through every gate: authentication, the
// enablement check, static validation, the approval guard, a defensive
// re-validation, then sandboxed execution. Results, including failures and
// timeouts, are broadcast to the partner session as a system message so
// both sides observe an identical record.
func (p *Pipeline) ExecuteCommand(ctx context.Context, convID, sessionID, token, cmdline string, opts ExecOpts) (*Result, error) {
	if len(cmdline) > maxCommandLength {
		return nil, fmt.Errorf("%w: command exceeds %d characters", bridge.ErrValidation, maxCommandLength)
	}

	if !p.engine.Verify(convID, sessionID, token) {
		p.audit(convID, sessionID, "auth_failed", map[string]interface{}{
			"operation": "execute_command",
		})
		return nil, bridge.ErrAuthentication
	}

	p.mu.Lock()
	ce, ok := p.executors[convID]
	p.mu.Unlock()
	if !ok {
		return nil, ErrYoloDisabled
	}

	mode := ce.mode
	if opts.ModeOverride != "" {
		mode = opts.ModeOverride
	}

	verdict := Validate(cmdline, mode)
	if !verdict.Allowed {
		p.audit(convID, sessionID, "command_blocked", map[string]interface{}{
			"command": cmdline,
			"reason":  verdict.Reason,
		})
		return nil, fmt.Errorf("%w: %s", ErrBlocked, verdict.Reason)
	}

	if opts.DryRun {
		return &Result{Command: cmdline, DryRun: true, Success: true}, nil
	}

	if opts.ApprovalToken == "" {
		p.audit(convID, sessionID, "approval_missing", map[string]interface{}{
			"command": cmdline,
		})
		return nil, ErrApprovalRequired
	}
	if !p.guard.Validate(opts.ApprovalToken) {
		p.audit(convID, sessionID, "approval_rejected", map[string]interface{}{
			"command": cmdline,
		})
		return nil, ErrApprovalInvalid
	}

	// Re-validate after the approval gate: policy state may have changed
	// between the first check and here.
	verdict = Validate(cmdline, mode)
	if !verdict.Allowed {
		p.audit(convID, sessionID, "command_blocked", map[string]interface{}{
			"command": cmdline,
			"reason":  verdict.Reason,
		})
		return nil, fmt.Errorf("%w: %s", ErrBlocked, verdict.Reason)
	}

	p.audit(convID, sessionID, "command_execute_start", map[string]interface{}{
		"command": cmdline,
		"mode":    mode,
	})

	result, err := ce.executor.Execute(ctx, cmdline)
	if err != nil {
		p.audit(convID, sessionID, "command_execute_complete", map[string]interface{}{
			"command": cmdline,
			"success": false,
			"error":   err.Error(),
		})
		return nil, err
	}

	p.audit(convID, sessionID, "command_execute_complete", map[string]interface{}{
		"command":   cmdline,
		"success":   result.Success,
		"exit_code": result.ExitCode,
		"duration":  result.Duration.Seconds(),
	})

	p.broadcast(convID, sessionID, result)

	return result, nil
}

// broadcast stores the execution transcript as a system-authored message to
// the partner session. Broadcast failure never fails the execution itself.
func (p *Pipeline) broadcast(convID, sessionID string, result *Result) {
	partner := "a"
	if sessionID == "a" {
		partner = "b"
	}

	msg := &models.Message{
		ConversationID: convID,
		FromSession:    "system",
		ToSession:      partner,
		Body:           transcript(sessionID, result),
		Metadata:       fmt.Sprintf(`{"type":"command_result","executor":%q}`, sessionID),
		Timestamp:      time.Now().UTC(),
	}
	_ = store.InsertMessage(p.engine.DB(), msg)
}

// transcript renders a human-readable execution record.
func transcript(sessionID string, r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Command executed by session %s:\n```\n%s\n```\n\n", sessionID, r.Command)
	if r.TimedOut {
		fmt.Fprintf(&b, "Timed out after %s\n", r.Duration)
	} else {
		fmt.Fprintf(&b, "Exit code: %d\nDuration: %.2fs\n", r.ExitCode, r.Duration.Seconds())
	}
	fmt.Fprintf(&b, "\nSTDOUT:\n```\n%s\n```\n", clip(r.Stdout, 1000))
	fmt.Fprintf(&b, "\nSTDERR:\n```\n%s\n```\n", clip(r.Stderr, 1000))
	return b.String()
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// audit appends to the conversation audit trail, ignoring storage errors.
func (p *Pipeline) audit(convID, sessionID, action string, details map[string]interface{}) {
	_ = store.AppendAudit(p.engine.DB(), convID, sessionID, action, details)
}
