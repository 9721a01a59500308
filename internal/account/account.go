// Package account creates and removes the OS identities that isolate workspaces.
//
// Each workspace runs as its own unprivileged system account with a private
// home directory. The service credential is generated here and stored in the
// home directory, readable only by the account.
package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/system"
)

// CredentialFile is the credential's file name inside the home directory.
const CredentialFile = ".forage-credential"

// Exit statuses from shadow-utils.
const (
	useraddNameInUse  = 9
	userdelNoSuchUser = 6
)

// Identity is a created OS account.
type Identity struct {
	Name           string
	HomeDir        string
	CredentialPath string
}

// Manager creates and removes OS identities.
type Manager interface {
	// CreateIdentity creates the account, its home directory and a fresh
	// credential. On failure nothing is left behind.
	CreateIdentity(ctx context.Context, name string) (Identity, string, error)

	// RemoveIdentity deletes the account and its home. A missing account is
	// not an error.
	RemoveIdentity(ctx context.Context, name string) error

	// Exists reports whether the account exists.
	Exists(ctx context.Context, name string) (bool, error)
}

// GenerateCredential returns n random bytes encoded as unpadded base64url.
func GenerateCredential(n int) (string, error) {
	if n < config.MinCredentialBytes {
		return "", fmt.Errorf("credential must have at least %d bytes of entropy, got %d", config.MinCredentialBytes, n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SystemManager manages accounts with useradd(8) and userdel(8).
type SystemManager struct {
	cfg  config.AccountsConfig
	exec system.CommandExecutor
	fs   system.FileSystem
}

// NewSystemManager creates a SystemManager.
func NewSystemManager(cfg config.AccountsConfig, exec system.CommandExecutor, fs system.FileSystem) *SystemManager {
	return &SystemManager{cfg: cfg, exec: exec, fs: fs}
}

// HomeDir returns the home directory for name, confined to the homes root.
func (m *SystemManager) HomeDir(name string) (string, error) {
	home, err := securejoin.SecureJoin(m.cfg.HomesDir, name)
	if err != nil {
		return "", errors.ValidationError(fmt.Sprintf("invalid identity name %q: %v", name, err))
	}
	return home, nil
}

func (m *SystemManager) CreateIdentity(ctx context.Context, name string) (Identity, string, error) {
	home, err := m.HomeDir(name)
	if err != nil {
		return Identity{}, "", err
	}

	exists, err := m.Exists(ctx, name)
	if err != nil {
		return Identity{}, "", err
	}
	if exists {
		return Identity{}, "", errors.IdentityConflict(name)
	}

	credential, err := GenerateCredential(m.cfg.CredentialBytes)
	if err != nil {
		return Identity{}, "", errors.SystemError("generate credential", err)
	}

	out, err := m.exec.Execute(ctx, "useradd",
		"--system",
		"--create-home",
		"--home-dir", home,
		"--shell", m.cfg.Shell,
		"--user-group",
		name,
	)
	if err != nil {
		if system.ExitCode(err) == useraddNameInUse {
			return Identity{}, "", errors.IdentityConflict(name)
		}
		// useradd may have created the account before failing on the home.
		m.cleanup(ctx, name, home)
		return Identity{}, "", errors.SystemError("useradd "+name, commandError(err, out))
	}

	id := Identity{Name: name, HomeDir: home, CredentialPath: filepath.Join(home, CredentialFile)}
	if err := m.writeCredential(ctx, id, credential); err != nil {
		m.cleanup(ctx, name, home)
		return Identity{}, "", err
	}

	logging.Debug("identity created", "identity", name, "home", home)
	return id, credential, nil
}

func (m *SystemManager) writeCredential(ctx context.Context, id Identity, credential string) error {
	if err := m.fs.WriteFileAtomic(id.CredentialPath, []byte(credential+"\n"), 0600); err != nil {
		return errors.SystemError("write credential", err)
	}
	out, err := m.exec.Execute(ctx, "chown", id.Name+":"+id.Name, id.CredentialPath)
	if err != nil {
		return errors.SystemError("chown credential", commandError(err, out))
	}
	return nil
}

// cleanup undoes a partial CreateIdentity. Failures are logged only; the
// original error is what the caller needs to see.
func (m *SystemManager) cleanup(ctx context.Context, name, home string) {
	if out, err := m.exec.Execute(ctx, "userdel", "--remove", name); err != nil && system.ExitCode(err) != userdelNoSuchUser {
		logging.Warn("cleanup: userdel failed", "identity", name, "error", commandError(err, out))
	}
	if err := m.fs.RemoveAll(home); err != nil {
		logging.Warn("cleanup: remove home failed", "identity", name, "error", err)
	}
}

func (m *SystemManager) RemoveIdentity(ctx context.Context, name string) error {
	home, err := m.HomeDir(name)
	if err != nil {
		return err
	}

	out, err := m.exec.Execute(ctx, "userdel", "--remove", name)
	if err != nil && system.ExitCode(err) != userdelNoSuchUser {
		return errors.SystemError("userdel "+name, commandError(err, out))
	}
	// userdel leaves the home behind when it is not owned by the user.
	if err := m.fs.RemoveAll(home); err != nil {
		return errors.SystemError("remove home "+home, err)
	}

	logging.Debug("identity removed", "identity", name)
	return nil
}

func (m *SystemManager) Exists(ctx context.Context, name string) (bool, error) {
	out, err := m.exec.Execute(ctx, "id", "-u", name)
	if err == nil {
		return true, nil
	}
	if system.ExitCode(err) == 1 {
		return false, nil
	}
	return false, errors.SystemError("id "+name, commandError(err, out))
}

func commandError(err error, out []byte) error {
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}

var _ Manager = (*SystemManager)(nil)
