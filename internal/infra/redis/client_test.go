package redis

import (
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vietddude/hotstore/internal/core/domain"
)

func TestNewClient_Defaults(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:0"})
	defer rdb.Close()

	c := newClient(rdb, Config{})
	if c.channel != DefaultChannel {
		t.Errorf("expected default channel, got %q", c.channel)
	}
	if c.namespace != "default" {
		t.Errorf("expected default namespace, got %q", c.namespace)
	}

	c = newClient(rdb, Config{Channel: "reverts", Namespace: "mainnet"})
	if c.channel != "reverts" || c.namespace != "mainnet" {
		t.Errorf("expected configured names, got %q/%q", c.channel, c.namespace)
	}
}

func TestKeys(t *testing.T) {
	tcs := []struct {
		got, want string
	}{
		{lockKey("mainnet"), "hotstore:rollback_lock:mainnet"},
		{failedQueueKey("mainnet"), "hotstore:failed_rollbacks:mainnet"},
		{failedKey("mainnet", "42"), "hotstore:failed_rollback:mainnet:42"},
	}
	for _, tc := range tcs {
		if tc.got != tc.want {
			t.Errorf("expected %s, got %s", tc.want, tc.got)
		}
	}
}

func TestEncodeEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	payload, err := encodeEvent(domain.RevertEvent{
		RunID:      "run-1",
		Height:     101,
		Hash:       "0xb",
		SafeHeight: 100,
		Undone:     3,
		DetectedAt: at,
		Reason:     "parent_hash_mismatch",
	})
	if err != nil {
		t.Fatalf("encodeEvent failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["event_type"] != string(domain.EventTypeBlockReverted) {
		t.Errorf("expected default event type, got %v", decoded["event_type"])
	}
	if decoded["height"] != float64(101) || decoded["safe_height"] != float64(100) {
		t.Errorf("unexpected heights in %s", payload)
	}
	if decoded["detected_at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected timestamp %v", decoded["detected_at"])
	}
}
