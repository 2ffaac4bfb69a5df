package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest 是前端构建产物附带的预缓存清单（YAML），可覆盖 TOML 中的资源列表。
//
//	release: v4.1.0
//	critical: ["/", "/offline"]
//	static: ["/about", "/_next/static/app.js"]
//	endpoints: ["/api/contact"]
type Manifest struct {
	Release   string   `yaml:"release"`
	Critical  []string `yaml:"critical"`
	Static    []string `yaml:"static"`
	Endpoints []string `yaml:"endpoints"`
}

// LoadManifest 读取并解析 YAML 清单。
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取预缓存清单失败: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("解析预缓存清单失败: %w", err)
	}
	return &m, nil
}

// Apply 将清单中非空的字段合并进全局配置；ReleaseTag 仅在配置未显式声明时采用清单版本。
func (m *Manifest) Apply(g *GlobalConfig) {
	if m == nil || g == nil {
		return
	}
	if len(m.Critical) > 0 {
		g.CriticalAssets = dedupe(m.Critical)
	}
	if len(m.Static) > 0 {
		g.StaticAssets = dedupe(m.Static)
	}
	if len(m.Endpoints) > 0 {
		g.CriticalEndpoints = dedupe(m.Endpoints)
	}
	if g.ReleaseTag == "" {
		g.ReleaseTag = strings.TrimSpace(m.Release)
	}
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
