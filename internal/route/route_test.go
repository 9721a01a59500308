package route

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/store"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/system"
)

type memTable struct {
	mu     sync.Mutex
	routes map[string]store.Route
}

func newMemTable() *memTable { return &memTable{routes: map[string]store.Route{}} }

func (m *memTable) UpsertRoute(ctx context.Context, r store.Route) (*store.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.routes[r.Hostname]
	m.routes[r.Hostname] = r
	if ok {
		return &prev, nil
	}
	return nil, nil
}

func (m *memTable) DeleteRoute(ctx context.Context, hostname, workspaceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[hostname]
	if !ok || r.WorkspaceID != workspaceID {
		return false, nil
	}
	delete(m.routes, hostname)
	return true, nil
}

func (m *memTable) GetRoute(ctx context.Context, hostname string) (store.Route, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[hostname]
	return r, ok, nil
}

func (m *memTable) ListRoutes(ctx context.Context) ([]store.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Route, 0, len(m.routes))
	for _, r := range m.routes {
		out = append(out, r)
	}
	return out, nil
}

func newTestPublisher(t *testing.T, path string) (*Publisher, *system.MockFS) {
	t.Helper()
	mockFS := system.NewMockFS()
	p, err := NewPublisher(config.RoutesConfig{Path: path, EntryPoint: "websecure", CertResolver: "le"}, newMemTable(), mockFS)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	return p, mockFS
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"/etc/traefik/dynamic/ws.yaml", FormatYAML, false},
		{"/etc/traefik/dynamic/ws.YML", FormatYAML, false},
		{"/etc/traefik/dynamic/ws.toml", FormatTOML, false},
		{"/etc/traefik/dynamic/ws.json", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFor(tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("FormatFor(%q) = %q, %v", tt.path, got, err)
		}
	}
}

func TestRender_RoundTrip(t *testing.T) {
	routes := []store.Route{
		{Hostname: "dev-acme.ws.example.com", Port: 8001},
		{Hostname: "api-acme.ws.example.com", Port: 8002},
	}
	cfg := config.RoutesConfig{EntryPoint: "websecure", CertResolver: "le"}

	for _, format := range []Format{FormatYAML, FormatTOML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Render(routes, cfg, format)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			text := string(data)
			if !strings.Contains(text, "Host(`dev-acme.ws.example.com`)") {
				t.Errorf("missing host rule:\n%s", text)
			}
			if !strings.Contains(text, "http://127.0.0.1:8001") {
				t.Errorf("missing loopback backend:\n%s", text)
			}
			if !strings.Contains(text, "certResolver") {
				t.Errorf("missing cert resolver:\n%s", text)
			}

			parsed, err := Parse(data, format)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(parsed) != 2 || parsed["dev-acme.ws.example.com"] != 8001 || parsed["api-acme.ws.example.com"] != 8002 {
				t.Errorf("parsed = %v", parsed)
			}

			again, _ := Render([]store.Route{routes[1], routes[0]}, cfg, format)
			if string(again) != text {
				t.Error("render should not depend on input order")
			}
		})
	}
}

func TestRender_Empty(t *testing.T) {
	data, err := Render(nil, config.RoutesConfig{}, FormatYAML)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	parsed, err := Parse(data, FormatYAML)
	if err != nil || len(parsed) != 0 {
		t.Errorf("Parse(empty) = %v, %v", parsed, err)
	}
}

func TestPublisher_PublishUnpublish(t *testing.T) {
	ctx := context.Background()
	path := "/etc/traefik/dynamic/forage-ws.yaml"
	p, mockFS := newTestPublisher(t, path)

	if err := p.Publish(ctx, "dev-acme.example.com", 8001, "ws-1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	ok, _ := p.IsPublished(ctx, "dev-acme.example.com")
	if !ok {
		t.Error("IsPublished = false after Publish")
	}
	published, err := p.Published()
	if err != nil || published["dev-acme.example.com"] != 8001 {
		t.Errorf("Published() = %v, %v", published, err)
	}

	if err := p.Unpublish(ctx, "dev-acme.example.com", "ws-1"); err != nil {
		t.Fatalf("Unpublish failed: %v", err)
	}
	ok, _ = p.IsPublished(ctx, "dev-acme.example.com")
	if ok {
		t.Error("IsPublished = true after Unpublish")
	}
	if err := p.Unpublish(ctx, "dev-acme.example.com", "ws-1"); err != nil {
		t.Errorf("second Unpublish = %v, want nil", err)
	}
	published, _ = p.Published()
	if len(published) != 0 {
		t.Errorf("file still has routes: %v", published)
	}
	if mockFS.WriteCount(path) != 2 {
		t.Errorf("file written %d times, want 2", mockFS.WriteCount(path))
	}
}

func TestPublisher_RepublishIsNoop(t *testing.T) {
	ctx := context.Background()
	path := "/etc/traefik/dynamic/forage-ws.toml"
	p, mockFS := newTestPublisher(t, path)

	for i := 0; i < 3; i++ {
		if err := p.Publish(ctx, "dev-acme.example.com", 8001, "ws-1"); err != nil {
			t.Fatalf("Publish #%d failed: %v", i+1, err)
		}
	}
	if n := mockFS.WriteCount(path); n != 1 {
		t.Errorf("file written %d times, want 1", n)
	}

	if err := p.Publish(ctx, "dev-acme.example.com", 8009, "ws-1"); err != nil {
		t.Fatalf("Publish with new port failed: %v", err)
	}
	published, _ := p.Published()
	if published["dev-acme.example.com"] != 8009 || len(published) != 1 {
		t.Errorf("Published() = %v, want single route to 8009", published)
	}
}

func TestPublisher_RejectsForeignHostname(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPublisher(t, "/routes.yaml")

	if err := p.Publish(ctx, "dev-acme.example.com", 8001, "ws-1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	err := p.Publish(ctx, "dev-acme.example.com", 8002, "ws-2")
	if !stderrors.Is(err, errors.ErrNameConflict) {
		t.Fatalf("Publish for other workspace = %v, want ErrNameConflict", err)
	}
	published, _ := p.Published()
	if published["dev-acme.example.com"] != 8001 {
		t.Errorf("existing route changed: %v", published)
	}

	// The losing workspace cleaning up must not take the route with it.
	if err := p.Unpublish(ctx, "dev-acme.example.com", "ws-2"); err != nil {
		t.Fatalf("Unpublish by other workspace failed: %v", err)
	}
	if ok, _ := p.IsPublished(ctx, "dev-acme.example.com"); !ok {
		t.Error("route removed by a workspace that does not own it")
	}
	published, _ = p.Published()
	if published["dev-acme.example.com"] != 8001 {
		t.Errorf("route file lost the owner's route: %v", published)
	}
}

func TestPublisher_Validation(t *testing.T) {
	p, _ := newTestPublisher(t, "/routes.yaml")
	ctx := context.Background()

	for _, host := range []string{"", "UPPER.example.com", "bad host", "-x.example.com"} {
		if err := p.Publish(ctx, host, 8001, "ws"); !stderrors.Is(err, errors.ErrValidation) {
			t.Errorf("Publish(%q) = %v, want ErrValidation", host, err)
		}
	}
	if err := p.Publish(ctx, "ok.example.com", 0, "ws"); !stderrors.Is(err, errors.ErrValidation) {
		t.Errorf("Publish(port 0) = %v, want ErrValidation", err)
	}
}

func TestPublisher_SyncRepairsFile(t *testing.T) {
	ctx := context.Background()
	path := "/routes.yaml"
	p, mockFS := newTestPublisher(t, path)

	p.Publish(ctx, "a.example.com", 8001, "ws-1")
	mockFS.AddFile(path, []byte("http: {}\n"), 0644)

	changed, err := p.Sync(ctx)
	if err != nil || !changed {
		t.Fatalf("Sync = %v, %v; want changed", changed, err)
	}
	changed, _ = p.Sync(ctx)
	if changed {
		t.Error("second Sync should not rewrite")
	}
	published, _ := p.Published()
	if published["a.example.com"] != 8001 {
		t.Errorf("Published() = %v", published)
	}
}

func TestPublisher_WriteFailure(t *testing.T) {
	p, mockFS := newTestPublisher(t, "/routes.yaml")
	mockFS.WriteFileErr = stderrors.New("read-only file system")

	ctx := context.Background()
	err := p.Publish(ctx, "a.example.com", 8001, "ws-1")
	if !stderrors.Is(err, errors.ErrSystem) {
		t.Errorf("Publish = %v, want ErrSystem", err)
	}
	if ok, _ := p.IsPublished(ctx, "a.example.com"); ok {
		t.Error("failed Publish left the route in the table")
	}
}

func TestNewPublisher_BadExtension(t *testing.T) {
	if _, err := NewPublisher(config.RoutesConfig{Path: "/routes.json"}, newMemTable(), system.NewMockFS()); err == nil {
		t.Error("expected error for unsupported extension")
	}
}
