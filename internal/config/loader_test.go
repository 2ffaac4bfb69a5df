package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(fixturePath("missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
StoragePath = "./data"
ReleaseTag = "v1"
Origin = "http://localhost:3000"
NetworkTimeout = "boom"
`
	path := tempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsIntegerSeconds(t *testing.T) {
	cfg := `
StoragePath = "./data"
ReleaseTag = "v1"
Origin = "http://localhost:3000"
NetworkTimeout = 3
`
	loaded, err := Load(tempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.NetworkTimeout.DurationValue() != 3*time.Second {
		t.Fatalf("纯数字应按秒解析，实际 %s", loaded.Global.NetworkTimeout.DurationValue())
	}
}

func TestLoadMergesPrecacheManifest(t *testing.T) {
	cfg, err := Load(fixturePath("manifest.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.ReleaseTag != "v4.1.0" {
		t.Fatalf("未声明 ReleaseTag 时应采用清单版本，实际 %s", cfg.Global.ReleaseTag)
	}
	if len(cfg.Global.CriticalAssets) != 2 {
		t.Fatalf("关键资源应去重，实际 %v", cfg.Global.CriticalAssets)
	}
	if len(cfg.Global.CriticalEndpoints) != 2 || cfg.Global.CriticalEndpoints[1] != "/api/estimate" {
		t.Fatalf("关键端点应来自清单，实际 %v", cfg.Global.CriticalEndpoints)
	}
}

func TestLoadFailsWithMissingManifest(t *testing.T) {
	cfg := `
StoragePath = "./data"
ReleaseTag = "v1"
Origin = "http://localhost:3000"
PrecacheManifest = "nope.yaml"
`
	if _, err := Load(tempConfig(t, cfg)); err == nil {
		t.Fatalf("清单不存在时应失败")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	content := `
StoragePath = "./data"
ReleaseTag = "v1"
Origin = "http://localhost:3000"
`
	path := tempConfig(t, content)

	reloaded := make(chan *Config, 4)
	initial, err := Watch(path, func(cfg *Config, err error) {
		if err == nil {
			reloaded <- cfg
		}
	})
	if err != nil {
		t.Fatalf("Watch 返回错误: %v", err)
	}
	if initial.Global.ReleaseTag != "v1" {
		t.Fatalf("初始版本不正确: %s", initial.Global.ReleaseTag)
	}

	updated := `
StoragePath = "./data"
ReleaseTag = "v2"
Origin = "http://localhost:3000"
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case next := <-reloaded:
			if next.Global.ReleaseTag == "v2" {
				if !ReleaseChanged(initial, next) {
					t.Fatalf("ReleaseChanged 应识别版本变化")
				}
				return
			}
		case <-deadline:
			t.Fatalf("等待配置热更新超时")
		}
	}
}

func TestManifestApplyKeepsExplicitRelease(t *testing.T) {
	g := GlobalConfig{ReleaseTag: "v9", StaticAssets: []string{"/a"}}
	(&Manifest{Release: "v1", Static: []string{" /b ", "/b", ""}}).Apply(&g)
	if g.ReleaseTag != "v9" {
		t.Fatalf("显式 ReleaseTag 不应被覆盖")
	}
	if len(g.StaticAssets) != 1 || g.StaticAssets[0] != "/b" {
		t.Fatalf("静态资源应被清单替换并去重: %v", g.StaticAssets)
	}
}

func fixturePath(name string) string {
	return filepath.Join("testdata", name)
}

// tempConfig 把 content 写入独立临时目录下的 config.toml 并返回路径。
func tempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
