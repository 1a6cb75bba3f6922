package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Mode != "release" {
		t.Fatalf("unexpected defaults: port=%d mode=%s", cfg.Port, cfg.Mode)
	}
	if cfg.PingPeriod != 54*time.Second {
		t.Fatalf("ping_period = %v", cfg.PingPeriod)
	}
	if len(cfg.Media.ICEServers) != 1 || cfg.Media.ICEServers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("unexpected ice servers: %+v", cfg.Media.ICEServers)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
port: 9000
join_limit: 2
media:
  pli_interval: 1s
  udp_port_min: 50000
  udp_port_max: 50100
  ice_servers:
    - urls: ["turn:turn.example.org:3478"]
      username: guest
      credential: secret
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 || cfg.JoinLimit != 2 {
		t.Fatalf("port=%d join_limit=%d", cfg.Port, cfg.JoinLimit)
	}
	if cfg.Media.PLIInterval != time.Second || cfg.Media.UDPPortMin != 50000 || cfg.Media.UDPPortMax != 50100 {
		t.Fatalf("unexpected media: %+v", cfg.Media)
	}
	if got := cfg.Media.ICEServers[0]; got.Username != "guest" || got.Credential != "secret" {
		t.Fatalf("unexpected ice server: %+v", got)
	}
}

func TestLoadRejectsBadPortRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "media:\n  udp_port_min: 6000\n  udp_port_max: 5000\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an inverted port range")
	}
}
