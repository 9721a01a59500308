package unit

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/system"
)

func testServiceConfig() config.ServiceConfig {
	cfg := config.DefaultHostConfig().Service
	cfg.UnitsDir = "/etc/systemd/system"
	cfg.EnvDir = "/etc/forage-ws/env"
	cfg.StartTimeout = config.Duration{Duration: 50 * time.Millisecond}
	cfg.PollInterval = config.Duration{Duration: 5 * time.Millisecond}
	return cfg
}

func testSpec() Spec {
	return Spec{
		Name:       "forage-ws-fws-abc.service",
		Identity:   "fws-abc",
		Port:       8001,
		WorkingDir: "/srv/homes/fws-abc",
		Credential: "s3cret",
	}
}

func TestRenderExecStart(t *testing.T) {
	got, err := renderExecStart(config.DefaultExecStart, execData{
		BindAddr:   "127.0.0.1:8001",
		Port:       8001,
		WorkingDir: "/srv/homes/my dir",
	})
	if err != nil {
		t.Fatalf("renderExecStart failed: %v", err)
	}
	want := `/usr/bin/code-server --bind-addr 127.0.0.1:8001 --auth password '/srv/homes/my dir'`
	if got != want {
		t.Errorf("renderExecStart = %q, want %q", got, want)
	}
}

func TestRenderExecStart_Invalid(t *testing.T) {
	tests := []struct {
		name, command string
	}{
		{"empty", ""},
		{"relative", "code-server --bind-addr {{.BindAddr}}"},
		{"unbalanced quote", `/usr/bin/x "unterminated`},
		{"unknown field", "/usr/bin/x {{.Nope}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := renderExecStart(tt.command, execData{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSpec_Validate(t *testing.T) {
	bad := []func(*Spec){
		func(s *Spec) { s.Name = "x" },
		func(s *Spec) { s.Identity = "root" },
		func(s *Spec) { s.Port = 0 },
		func(s *Spec) { s.WorkingDir = "" },
		func(s *Spec) { s.Credential = "" },
	}
	for i, mutate := range bad {
		s := testSpec()
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestSystemdManager_Install(t *testing.T) {
	mockExec := system.NewMockExecutor()
	mockFS := system.NewMockFS()
	m := NewSystemdManager(testServiceConfig(), mockExec, mockFS)

	ref, err := m.Install(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if ref.Name != "forage-ws-fws-abc.service" {
		t.Errorf("ref = %q", ref.Name)
	}

	unitPath := "/etc/systemd/system/forage-ws-fws-abc.service"
	data, ok := mockFS.GetFile(unitPath)
	if !ok {
		t.Fatalf("unit file not written")
	}
	content := string(data)
	for _, want := range []string{
		"User=fws-abc",
		"Restart=always",
		"ExecStart=/usr/bin/code-server --bind-addr 127.0.0.1:8001",
		"EnvironmentFile=/etc/forage-ws/env/forage-ws-fws-abc.env",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("unit file missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "0.0.0.0") {
		t.Error("service must not bind to all interfaces")
	}

	env, _ := mockFS.GetFile("/etc/forage-ws/env/forage-ws-fws-abc.env")
	if string(env) != "PASSWORD=s3cret\n" {
		t.Errorf("env file = %q", env)
	}
	if mode, _ := mockFS.FileMode("/etc/forage-ws/env/forage-ws-fws-abc.env"); mode != 0600 {
		t.Errorf("env mode = %v, want 0600", mode)
	}

	if !mockExec.Ran("systemctl daemon-reload") || !mockExec.Ran("systemctl enable forage-ws-fws-abc.service") {
		t.Errorf("unexpected commands: %v", mockExec.Commands)
	}
}

func TestSystemdManager_InstallIdempotent(t *testing.T) {
	mockExec := system.NewMockExecutor()
	mockFS := system.NewMockFS()
	m := NewSystemdManager(testServiceConfig(), mockExec, mockFS)
	ctx := context.Background()

	if _, err := m.Install(ctx, testSpec()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	mockExec.Reset()
	if _, err := m.Install(ctx, testSpec()); err != nil {
		t.Fatalf("second Install failed: %v", err)
	}

	if n := mockFS.WriteCount("/etc/systemd/system/forage-ws-fws-abc.service"); n != 1 {
		t.Errorf("unit written %d times, want 1", n)
	}
	if mockExec.Ran("systemctl daemon-reload") {
		t.Error("unchanged install should not reload")
	}
}

func TestSystemdManager_StartWaitsForActive(t *testing.T) {
	mockExec := system.NewMockExecutor()
	polls := 0
	mockExec.Handler = func(name string, args []string) (system.MockResponse, bool) {
		if name == "systemctl" && args[0] == "is-active" {
			polls++
			if polls < 3 {
				return system.MockResponse{Output: []byte("activating\n"), Err: &system.ExitError{Code: 3}}, true
			}
			return system.MockResponse{Output: []byte("active\n")}, true
		}
		return system.MockResponse{}, false
	}
	m := NewSystemdManager(testServiceConfig(), mockExec, system.NewMockFS())

	if err := m.Start(context.Background(), Ref{Name: "x.service"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if polls != 3 {
		t.Errorf("polled %d times, want 3", polls)
	}
}

func TestSystemdManager_StartTimeout(t *testing.T) {
	mockExec := system.NewMockExecutor()
	mockExec.AddResponse("systemctl is-active", []byte("activating\n"), &system.ExitError{Code: 3})
	m := NewSystemdManager(testServiceConfig(), mockExec, system.NewMockFS())

	err := m.Start(context.Background(), Ref{Name: "x.service"})
	if !stderrors.Is(err, errors.ErrSystem) {
		t.Fatalf("Start error = %v, want ErrSystem", err)
	}
	if !strings.Contains(err.Error(), "did not reach active") {
		t.Errorf("error should mention timeout: %v", err)
	}
}

func TestSystemdManager_StartFailedUnit(t *testing.T) {
	mockExec := system.NewMockExecutor()
	mockExec.AddResponse("systemctl is-active", []byte("failed\n"), &system.ExitError{Code: 3})
	m := NewSystemdManager(testServiceConfig(), mockExec, system.NewMockFS())

	err := m.Start(context.Background(), Ref{Name: "x.service"})
	if err == nil || !strings.Contains(err.Error(), "failed state") {
		t.Errorf("Start error = %v, want failed state", err)
	}
}

func TestSystemdManager_FailedInstallLeavesNothing(t *testing.T) {
	mockExec := system.NewMockExecutor()
	mockExec.AddResponse("systemctl enable", []byte("Failed to enable unit"), &system.ExitError{Code: 1})
	mockFS := system.NewMockFS()
	m := NewSystemdManager(testServiceConfig(), mockExec, mockFS)

	_, err := m.Install(context.Background(), testSpec())
	if !stderrors.Is(err, errors.ErrSystem) {
		t.Fatalf("Install = %v, want system error", err)
	}
	if mockFS.Exists("/etc/systemd/system/forage-ws-fws-abc.service") {
		t.Error("unit file left behind by a failed install")
	}
	if mockFS.Exists("/etc/forage-ws/env/forage-ws-fws-abc.env") {
		t.Error("env file left behind by a failed install")
	}
}

func TestSystemdManager_StopMissingUnit(t *testing.T) {
	mockExec := system.NewMockExecutor()
	mockExec.AddResponse("systemctl stop", []byte("Failed to stop x.service: Unit x.service not loaded."), &system.ExitError{Code: 5})
	m := NewSystemdManager(testServiceConfig(), mockExec, system.NewMockFS())

	if err := m.Stop(context.Background(), Ref{Name: "x.service"}); err != nil {
		t.Errorf("Stop on missing unit = %v, want nil", err)
	}
}

func TestSystemdManager_RemoveIdempotent(t *testing.T) {
	mockExec := system.NewMockExecutor()
	mockFS := system.NewMockFS()
	m := NewSystemdManager(testServiceConfig(), mockExec, mockFS)
	ctx := context.Background()

	ref, err := m.Install(ctx, testSpec())
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := m.Remove(ctx, ref); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if mockFS.Exists("/etc/systemd/system/forage-ws-fws-abc.service") {
		t.Error("unit file should be removed")
	}
	if mockFS.Exists("/etc/forage-ws/env/forage-ws-fws-abc.env") {
		t.Error("env file should be removed")
	}

	mockExec.Reset()
	mockExec.AddResponse("systemctl disable", []byte("Failed to disable unit: Unit file forage-ws-fws-abc.service does not exist."), &system.ExitError{Code: 1})
	if err := m.Remove(ctx, ref); err != nil {
		t.Errorf("second Remove = %v, want nil", err)
	}
	if mockExec.Ran("systemctl daemon-reload") {
		t.Error("nothing removed, no reload expected")
	}
}

func TestMockManager_Lifecycle(t *testing.T) {
	m := NewMockManager()
	ctx := context.Background()

	ref, err := m.Install(ctx, testSpec())
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := m.Start(ctx, ref); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if st, _ := m.Status(ctx, ref); !st.Running() {
		t.Errorf("state = %s, want active", st)
	}

	m.Transient["Stop"] = 1
	if err := m.Stop(ctx, ref); !stderrors.Is(err, errors.ErrSystem) {
		t.Errorf("transient Stop = %v", err)
	}
	if err := m.Stop(ctx, ref); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := m.Remove(ctx, ref); err != nil {
		t.Errorf("Remove failed: %v", err)
	}
	if m.Count() != 0 {
		t.Error("unit should be gone")
	}
	if err := m.Stop(ctx, ref); err != nil {
		t.Errorf("Stop on removed unit = %v, want nil", err)
	}
}
