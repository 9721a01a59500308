package system

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestMockFS_ReadWriteFile(t *testing.T) {
	mockFS := NewMockFS()

	if err := mockFS.WriteFile("/test/file.txt", []byte("hello world"), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	data, err := mockFS.ReadFile("/test/file.txt")
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("ReadFile = %q, want %q", string(data), "hello world")
	}
	if mockFS.WriteCount("/test/file.txt") != 1 {
		t.Errorf("WriteCount = %d, want 1", mockFS.WriteCount("/test/file.txt"))
	}
}

func TestMockFS_ReadFile_NotExists(t *testing.T) {
	mockFS := NewMockFS()

	_, err := mockFS.ReadFile("/nonexistent")
	if err != fs.ErrNotExist {
		t.Errorf("ReadFile error = %v, want fs.ErrNotExist", err)
	}
}

func TestMockFS_AtomicKeepsMode(t *testing.T) {
	mockFS := NewMockFS()
	if err := mockFS.WriteFileAtomic("/etc/secret", []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFileAtomic error: %v", err)
	}
	mode, ok := mockFS.FileMode("/etc/secret")
	if !ok || mode != 0600 {
		t.Errorf("FileMode = %v, %v; want 0600", mode, ok)
	}
}

func TestMockFS_RemoveAll(t *testing.T) {
	mockFS := NewMockFS()
	mockFS.AddFile("/home/fws-1/.credential", []byte("s"), 0600)
	mockFS.AddFile("/home/fws-10/.credential", []byte("s"), 0600)

	if err := mockFS.RemoveAll("/home/fws-1"); err != nil {
		t.Fatalf("RemoveAll error: %v", err)
	}
	if mockFS.Exists("/home/fws-1/.credential") {
		t.Error("file under removed dir still exists")
	}
	if !mockFS.Exists("/home/fws-10/.credential") {
		t.Error("sibling with shared prefix was removed")
	}
}

func TestMockExecutor_Responses(t *testing.T) {
	mockExec := NewMockExecutor()
	mockExec.AddResponse("systemctl is-active", []byte("active\n"), nil)
	mockExec.AddResponse("useradd", nil, &ExitError{Code: 9})

	out, err := mockExec.Execute(context.Background(), "systemctl", "is-active", "x.service")
	if err != nil || string(out) != "active\n" {
		t.Errorf("Execute(systemctl is-active) = %q, %v", out, err)
	}

	_, err = mockExec.Execute(context.Background(), "useradd", "-m", "fws-1")
	if ExitCode(err) != 9 {
		t.Errorf("ExitCode = %d, want 9", ExitCode(err))
	}

	if !mockExec.Ran("useradd -m fws-1") {
		t.Error("Ran(useradd -m fws-1) = false")
	}
	if len(mockExec.Commands) != 2 {
		t.Errorf("recorded %d commands, want 2", len(mockExec.Commands))
	}
}

func TestMockExecutor_Handler(t *testing.T) {
	mockExec := NewMockExecutor()
	mockExec.Handler = func(name string, args []string) (MockResponse, bool) {
		if name == "id" {
			return MockResponse{Err: &ExitError{Code: 1}}, true
		}
		return MockResponse{}, false
	}
	mockExec.DefaultResponse = MockResponse{Output: []byte("ok")}

	if _, err := mockExec.Execute(context.Background(), "id", "fws-1"); ExitCode(err) != 1 {
		t.Errorf("handler not used, err = %v", err)
	}
	if out, _ := mockExec.Execute(context.Background(), "true"); string(out) != "ok" {
		t.Errorf("fallthrough output = %q, want ok", out)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != -1 {
		t.Error("ExitCode(nil) should be -1")
	}
	if ExitCode(errors.New("plain")) != -1 {
		t.Error("ExitCode(plain) should be -1")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")

	if err := WriteFileAtomic(path, []byte("first"), 0640); err != nil {
		t.Fatalf("WriteFileAtomic error: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0640); err != nil {
		t.Fatalf("WriteFileAtomic error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want second", data)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0640 {
		t.Errorf("mode = %v, want 0640", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}
