package command

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/bridge"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/guard"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/models"
	"github.com/dannystocker/mcp-multiagent-bridge/internal/ratelimit"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type pipelineFixture struct {
	pipeline *Pipeline
	guard    *guard.Guard
	engine   *bridge.Engine
	grant    *bridge.ConversationGrant
}

func newFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Conversation{}, &models.Message{},
		&models.SessionStatus{}, &models.AuditEntry{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	engine, err := bridge.New(db, ratelimit.New(100, 1000, 5000), time.Hour)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	grant, err := engine.CreateConversation("backend_developer", "frontend_developer")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	dir := t.TempDir()
	g := guard.New(filepath.Join(dir, "tokens.json"), filepath.Join(dir, "journal.log"))

	p, err := NewPipeline(engine, g)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return &pipelineFixture{pipeline: p, guard: g, engine: engine, grant: grant}
}

func (f *pipelineFixture) enable(t *testing.T, mode string) {
	t.Helper()
	_, err := f.pipeline.EnableYolo(f.grant.ConversationID, "a", f.grant.SessionAToken, mode,
		EnableOpts{Workspace: t.TempDir(), TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("EnableYolo: %v", err)
	}
}

func (f *pipelineFixture) approval(t *testing.T) string {
	t.Helper()
	token, err := f.guard.Generate(time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return token
}

// --- EnableYolo ---

func TestEnableYolo_AuthRequired(t *testing.T) {
	f := newFixture(t)

	wrong := strings.Repeat("0", 64)
	_, err := f.pipeline.EnableYolo(f.grant.ConversationID, "a", wrong, ModeSafe, EnableOpts{})
	if !errors.Is(err, bridge.ErrAuthentication) {
		t.Errorf("err = %v, want ErrAuthentication", err)
	}
	if f.pipeline.Enabled(f.grant.ConversationID) {
		t.Error("executor configured despite failed authentication")
	}
}

func TestEnableYolo_InvalidMode(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.EnableYolo(f.grant.ConversationID, "a", f.grant.SessionAToken, "turbo", EnableOpts{})
	if !errors.Is(err, bridge.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestEnableYolo_Defaults(t *testing.T) {
	f := newFixture(t)

	cfg, err := f.pipeline.EnableYolo(f.grant.ConversationID, "a", f.grant.SessionAToken, ModeSafe, EnableOpts{})
	if err != nil {
		t.Fatalf("EnableYolo: %v", err)
	}
	if cfg.Workspace == "" {
		t.Error("workspace not defaulted")
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
}

// --- ExecuteCommand gates ---

func TestExecuteCommand_DisabledConversation(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "ls", ExecOpts{})
	if !errors.Is(err, ErrYoloDisabled) {
		t.Errorf("err = %v, want ErrYoloDisabled", err)
	}
}

func TestExecuteCommand_AuthBeforeEverything(t *testing.T) {
	f := newFixture(t)
	f.enable(t, ModeSafe)

	wrong := strings.Repeat("0", 64)
	_, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", wrong, "ls", ExecOpts{})
	if !errors.Is(err, bridge.ErrAuthentication) {
		t.Errorf("err = %v, want ErrAuthentication", err)
	}
}

func TestExecuteCommand_Blocked(t *testing.T) {
	f := newFixture(t)
	f.enable(t, ModeYolo)

	_, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "sudo reboot",
		ExecOpts{ApprovalToken: f.approval(t)})
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("err = %v, want ErrBlocked", err)
	}
}

func TestExecuteCommand_ModePolicy(t *testing.T) {
	f := newFixture(t)
	f.enable(t, ModeSafe)

	_, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "git status",
		ExecOpts{ApprovalToken: f.approval(t)})
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("err = %v, want ErrBlocked for a non-safe command in safe mode", err)
	}
}

func TestExecuteCommand_DryRun(t *testing.T) {
	f := newFixture(t)
	f.enable(t, ModeSafe)

	// No approval token: a dry run stops before the approval gate.
	res, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "ls", ExecOpts{DryRun: true})
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if !res.DryRun || !res.Success {
		t.Errorf("result = %+v, want dry-run success", res)
	}
	if res.Stdout != "" {
		t.Error("dry run produced output")
	}
}

func TestExecuteCommand_ModeOverride(t *testing.T) {
	f := newFixture(t)
	f.enable(t, ModeYolo)

	// Overriding to safe tightens policy for this call only.
	_, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "git status",
		ExecOpts{ModeOverride: ModeSafe, DryRun: true})
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("err = %v, want ErrBlocked under the safe override", err)
	}

	// The configured mode is untouched.
	res, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "git status", ExecOpts{DryRun: true})
	if err != nil {
		t.Fatalf("ExecuteCommand after override: %v", err)
	}
	if !res.DryRun {
		t.Errorf("result = %+v", res)
	}
}

func TestExecuteCommand_ApprovalMissing(t *testing.T) {
	f := newFixture(t)
	f.enable(t, ModeSafe)

	_, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "ls", ExecOpts{})
	if !errors.Is(err, ErrApprovalRequired) {
		t.Errorf("err = %v, want ErrApprovalRequired", err)
	}
}

func TestExecuteCommand_ApprovalInvalid(t *testing.T) {
	f := newFixture(t)
	f.enable(t, ModeSafe)

	_, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "ls",
		ExecOpts{ApprovalToken: "never-issued"})
	if !errors.Is(err, ErrApprovalInvalid) {
		t.Errorf("err = %v, want ErrApprovalInvalid", err)
	}
}

func TestExecuteCommand_ApprovalSingleUse(t *testing.T) {
	f := newFixture(t)
	f.enable(t, ModeSafe)
	token := f.approval(t)

	if _, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "pwd",
		ExecOpts{ApprovalToken: token}); err != nil {
		t.Fatalf("first execution: %v", err)
	}

	_, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "pwd",
		ExecOpts{ApprovalToken: token})
	if !errors.Is(err, ErrApprovalInvalid) {
		t.Errorf("err = %v, want ErrApprovalInvalid on token reuse", err)
	}
}

func TestExecuteCommand_CommandTooLong(t *testing.T) {
	f := newFixture(t)
	f.enable(t, ModeYolo)

	_, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken,
		"echo "+strings.Repeat("x", maxCommandLength), ExecOpts{})
	if !errors.Is(err, bridge.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

// --- Execution and broadcast ---

func TestExecuteCommand_RunsAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	f.enable(t, ModeSafe)

	res, err := f.pipeline.ExecuteCommand(context.Background(),
		f.grant.ConversationID, "a", f.grant.SessionAToken, "echo done",
		ExecOpts{ApprovalToken: f.approval(t)})
	if err != nil {
		t.Fatalf("ExecuteCommand: %v", err)
	}
	if !res.Success || strings.TrimSpace(res.Stdout) != "done" {
		t.Errorf("result = %+v", res)
	}

	// The partner session receives the transcript as a system message.
	msgs, err := f.engine.Receive(f.grant.ConversationID, "b", f.grant.SessionBToken)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("partner got %d messages, want 1", len(msgs))
	}
	if msgs[0].From != "system" {
		t.Errorf("From = %q, want system", msgs[0].From)
	}
	if !strings.Contains(msgs[0].Body, "echo done") {
		t.Errorf("transcript missing the command: %q", msgs[0].Body)
	}
	if msgs[0].Metadata["type"] != "command_result" {
		t.Errorf("metadata = %v", msgs[0].Metadata)
	}
	if msgs[0].Metadata["executor"] != "a" {
		t.Errorf("metadata executor = %v", msgs[0].Metadata["executor"])
	}
}

func TestTranscript_ClipsLongOutput(t *testing.T) {
	r := &Result{
		Command:  "generate",
		Stdout:   strings.Repeat("x", 5000),
		ExitCode: 0,
	}
	out := transcript("a", r)
	if strings.Count(out, "x") > 1003 {
		t.Errorf("transcript did not clip stdout: %d bytes", len(out))
	}
	if !strings.Contains(out, "...") {
		t.Error("clipped output missing ellipsis")
	}
}
