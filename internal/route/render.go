package route

import (
	"bytes"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/store"
)

// Format is the serialization of the dynamic configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported route file extension %q", filepath.Ext(path))
}

// Traefik file provider schema, reduced to what workspaces need.

type dynamicConfig struct {
	HTTP httpConfig `yaml:"http" toml:"http"`
}

type httpConfig struct {
	Routers  map[string]router  `yaml:"routers" toml:"routers"`
	Services map[string]service `yaml:"services" toml:"services"`
}

type router struct {
	Rule        string     `yaml:"rule" toml:"rule"`
	Service     string     `yaml:"service" toml:"service"`
	EntryPoints []string   `yaml:"entryPoints,omitempty" toml:"entryPoints,omitempty"`
	TLS         *routerTLS `yaml:"tls,omitempty" toml:"tls,omitempty"`
}

type routerTLS struct {
	CertResolver string `yaml:"certResolver,omitempty" toml:"certResolver,omitempty"`
}

type service struct {
	LoadBalancer loadBalancer `yaml:"loadBalancer" toml:"loadBalancer"`
}

type loadBalancer struct {
	Servers []server `yaml:"servers" toml:"servers"`
}

type server struct {
	URL string `yaml:"url" toml:"url"`
}

// routerName maps a hostname to a router/service key. Hostnames only
// contain [a-z0-9.-], so replacing dots with underscores is reversible.
func routerName(hostname string) string {
	return "ws_" + strings.ReplaceAll(hostname, ".", "_")
}

func hostRule(hostname string) string {
	return "Host(`" + hostname + "`)"
}

func backendURL(port int) string {
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

// build folds the route table into a dynamic configuration.
func build(routes []store.Route, cfg config.RoutesConfig) dynamicConfig {
	dc := dynamicConfig{HTTP: httpConfig{
		Routers:  make(map[string]router, len(routes)),
		Services: make(map[string]service, len(routes)),
	}}
	for _, r := range routes {
		name := routerName(r.Hostname)
		rt := router{Rule: hostRule(r.Hostname), Service: name}
		if cfg.EntryPoint != "" {
			rt.EntryPoints = []string{cfg.EntryPoint}
		}
		if cfg.CertResolver != "" {
			rt.TLS = &routerTLS{CertResolver: cfg.CertResolver}
		}
		dc.HTTP.Routers[name] = rt
		dc.HTTP.Services[name] = service{LoadBalancer: loadBalancer{Servers: []server{{URL: backendURL(r.Port)}}}}
	}
	return dc
}

// Render produces the file contents for routes. Output is deterministic for
// a given set of routes so unchanged tables produce byte-identical files.
func Render(routes []store.Route, cfg config.RoutesConfig, format Format) ([]byte, error) {
	sorted := append([]store.Route(nil), routes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hostname < sorted[j].Hostname })
	dc := build(sorted, cfg)

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(dc); err != nil {
			return nil, fmt.Errorf("failed to encode routes: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode routes: %w", err)
		}
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(dc); err != nil {
			return nil, fmt.Errorf("failed to encode routes: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return buf.Bytes(), nil
}

const fileHeader = "# Generated by forage-ws. Do not edit; changes are overwritten.\n"

// Parse reads a rendered file back into hostname to port mappings.
func Parse(data []byte, format Format) (map[string]int, error) {
	var dc dynamicConfig
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &dc); err != nil {
			return nil, fmt.Errorf("failed to parse routes: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &dc); err != nil {
			return nil, fmt.Errorf("failed to parse routes: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	out := make(map[string]int, len(dc.HTTP.Routers))
	for name, rt := range dc.HTTP.Routers {
		host := strings.TrimSuffix(strings.TrimPrefix(rt.Rule, "Host(`"), "`)")
		svc, ok := dc.HTTP.Services[rt.Service]
		if !ok || len(svc.LoadBalancer.Servers) == 0 {
			return nil, fmt.Errorf("router %s has no backend", name)
		}
		u, err := url.Parse(svc.LoadBalancer.Servers[0].URL)
		if err != nil {
			return nil, fmt.Errorf("router %s: %w", name, err)
		}
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("router %s: invalid port in %q", name, u.String())
		}
		out[host] = port
	}
	return out, nil
}
