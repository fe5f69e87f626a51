package assistant

import (
	"testing"
	"time"
)

func newTestConfig(mode Mode) *Config {
	cfg := DefaultConfig()
	cfg.Mode = string(mode)
	return cfg
}

func TestNewRequiresAuthorizedID(t *testing.T) {
	deps := Deps{
		Transport: newFakeTransport(),
		Completer: &fakeCompleter{},
		Memory:    &fakeMemory{},
	}

	t.Run("two-number without number fails", func(t *testing.T) {
		if _, err := New(newTestConfig(ModeDualIdentity), deps, nil); err == nil {
			t.Error("expected error when two-number mode has no authorized number")
		}
	})

	t.Run("two-number with number passes", func(t *testing.T) {
		d := deps
		d.AuthorizedID = testConfiguredID
		if _, err := New(newTestConfig(ModeDualIdentity), d, nil); err != nil {
			t.Errorf("New: %v", err)
		}
	})

	t.Run("single-number without number passes", func(t *testing.T) {
		if _, err := New(newTestConfig(ModeSingleIdentity), deps, nil); err != nil {
			t.Errorf("New: %v", err)
		}
	})

	t.Run("ephemeral deployment degrades to a warning", func(t *testing.T) {
		cfg := newTestConfig(ModeDualIdentity)
		cfg.Ephemeral = true
		if _, err := New(cfg, deps, nil); err != nil {
			t.Errorf("New: %v", err)
		}
	})
}

func TestRestartBeforeStart(t *testing.T) {
	transport := newLifecycleTransport()
	ast, err := New(newTestConfig(ModeSingleIdentity), Deps{
		Transport: transport,
		Completer: &fakeCompleter{},
		Memory:    &fakeMemory{},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// The web UI is up before Start, so a restart may arrive first.
	ast.Restart()

	select {
	case <-transport.reinit:
	case <-time.After(2 * time.Second):
		t.Fatal("transport was not re-initialized")
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if transport.destroyed != 1 || transport.initialized != 1 {
		t.Errorf("destroyed = %d, initialized = %d, want 1 and 1",
			transport.destroyed, transport.initialized)
	}
}
