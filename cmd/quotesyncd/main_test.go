package main

import (
	"bytes"
	"testing"

	"github.com/floridasonconsulting/quoteit-sync/internal/models"
)

// TestLoadConfigDefaults tests the fallback configuration.
func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Addr == "" || cfg.DataDir == "" {
		t.Errorf("config = %+v, want non-empty addr and data dir", cfg)
	}
}

// TestLoadConfigEnvOverride tests that environment variables win.
func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("QUOTESYNC_ADDR", "localhost:9999")
	t.Setenv("QUOTESYNC_DATA_DIR", "/tmp/qs-test")

	cfg := loadConfig()
	if cfg.Addr != "localhost:9999" {
		t.Errorf("addr = %s, want the env value", cfg.Addr)
	}
	if cfg.DataDir != "/tmp/qs-test" {
		t.Errorf("data dir = %s, want the env value", cfg.DataDir)
	}
}

// TestPurgeRequiresConfirmation tests the --yes guard.
func TestPurgeRequiresConfirmation(t *testing.T) {
	cmd := purgeCmd(envConfig{DataDir: t.TempDir(), BackendURL: "http://localhost:1"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.RunE(cmd, nil); err == nil {
		t.Error("purge ran without --yes")
	}
}

// TestBuildRepositoryRequiresBackendURL tests the config guard.
func TestBuildRepositoryRequiresBackendURL(t *testing.T) {
	if _, err := buildRepository(envConfig{DataDir: t.TempDir()}); err == nil {
		t.Error("buildRepository accepted an empty backend URL")
	}
}

// TestPongAfterEvictionDoesNotPanic tests the race between the hub
// evicting a slow client and readPump answering a ping: the reply must be
// dropped, not sent on the closed channel.
func TestPongAfterEvictionDoesNotPanic(t *testing.T) {
	c := &WSClient{send: make(chan []byte, 1)}

	c.closeSend()
	c.sendPong() // must not panic

	if c.trySend([]byte("late")) {
		t.Error("trySend succeeded on a closed channel")
	}
	c.closeSend() // closing twice is a no-op
}

// TestTrySendDropsWhenBufferFull tests the non-blocking eviction guard.
func TestTrySendDropsWhenBufferFull(t *testing.T) {
	c := &WSClient{send: make(chan []byte, 1)}

	if !c.trySend([]byte("first")) {
		t.Fatal("trySend failed on an empty buffer")
	}
	if c.trySend([]byte("second")) {
		t.Error("trySend succeeded on a full buffer")
	}
}

// TestHubBroadcastEnvelope tests the sync status envelope shape.
func TestHubBroadcastEnvelope(t *testing.T) {
	// Built by hand so no run goroutine races the channel read below.
	hub := &WSHub{
		clients:   make(map[string]*WSClient),
		broadcast: make(chan []byte, 1),
	}

	hub.BroadcastSyncStatus(models.SyncStatus{IsOnline: true, PendingCount: 2})

	select {
	case msg := <-hub.broadcast:
		want := `"type":"sync.status"`
		if !bytes.Contains(msg, []byte(want)) {
			t.Errorf("broadcast = %s, want it to contain %s", msg, want)
		}
		if !bytes.Contains(msg, []byte(`"pendingCount":2`)) {
			t.Errorf("broadcast = %s, want pendingCount 2", msg)
		}
	default:
		t.Fatal("nothing broadcast")
	}
}
