package unit

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/kballard/go-shellquote"
)

// unitTemplate is the systemd service definition for one workspace.
// The service binds to loopback only and never runs as root.
const unitTemplate = `# Managed by forage-ws. Do not edit.
[Unit]
Description=forage-ws workspace {{.Identity}}
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User={{.Identity}}
Group={{.Identity}}
WorkingDirectory={{.WorkingDir}}
EnvironmentFile={{.EnvFile}}
Environment=HOST=127.0.0.1
Environment=PORT={{.Port}}
ExecStart={{.ExecStart}}
Restart=always
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ReadWritePaths={{.WorkingDir}}

[Install]
WantedBy=multi-user.target
`

var unitTmpl = template.Must(template.New("unit").Parse(unitTemplate))

// execData is available to the exec_start template.
type execData struct {
	BindAddr   string
	Port       int
	WorkingDir string
	User       string
}

type unitData struct {
	Identity   string
	WorkingDir string
	EnvFile    string
	Port       int
	ExecStart  string
}

// renderExecStart splits the configured command into words, expands each
// word as a template and quotes the result for the unit file. Expanding per
// word keeps values containing spaces as a single argument.
func renderExecStart(command string, data execData) (string, error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return "", fmt.Errorf("invalid exec_start: %w", err)
	}
	if len(words) == 0 {
		return "", fmt.Errorf("exec_start is empty")
	}

	argv := make([]string, 0, len(words))
	for i, word := range words {
		t, err := template.New("arg" + strconv.Itoa(i)).Option("missingkey=error").Parse(word)
		if err != nil {
			return "", fmt.Errorf("invalid exec_start argument %q: %w", word, err)
		}
		var buf strings.Builder
		if err := t.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("failed to render exec_start argument %q: %w", word, err)
		}
		argv = append(argv, buf.String())
	}
	if !strings.HasPrefix(argv[0], "/") {
		return "", fmt.Errorf("exec_start must use an absolute executable path (got %q)", argv[0])
	}
	return shellquote.Join(argv...), nil
}

func renderUnit(data unitData) ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render unit: %w", err)
	}
	return buf.Bytes(), nil
}

func renderEnv(credential string) []byte {
	return []byte("PASSWORD=" + credential + "\n")
}
