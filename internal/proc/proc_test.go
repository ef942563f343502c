package proc

import (
	"os/exec"
	"runtime"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestInterrupt_StopsLongRunningProcess(t *testing.T) {
	requireShell(t)

	p, err := Start("sh", []string{"-c", "exec sleep 30"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	start := time.Now()
	if err := p.Interrupt(2 * time.Second); err != nil {
		t.Errorf("Expected interrupt exit to be treated as success, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Interrupt took too long: %s", elapsed)
	}
	if exited, _ := p.Exited(); !exited {
		t.Errorf("Expected process to have exited")
	}
}

func TestInterrupt_ReportsFailureExit(t *testing.T) {
	requireShell(t)

	p, err := Start("sh", []string{"-c", "echo broken >&2; exit 3"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if exited, _ := p.Exited(); exited {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := p.Interrupt(time.Second); err == nil {
		t.Error("Expected error for non-zero exit")
	}
	if p.Stderr() != "broken\n" {
		t.Errorf("Expected captured stderr, got %q", p.Stderr())
	}
}

func TestStart_MissingBinary(t *testing.T) {
	if _, err := Start("definitely-not-a-real-binary-xyz", nil); err == nil {
		t.Error("Expected error for missing binary")
	}
}
