package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cliOutput 收集一次命令执行写出的 stdout/stderr。
type cliOutput struct {
	out bytes.Buffer
	err bytes.Buffer
}

// captureCLI 在测试期间把 stdOut/stdErr 指向内存缓冲区，结束时恢复。
func captureCLI(t *testing.T) *cliOutput {
	t.Helper()
	captured := &cliOutput{}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = &captured.out, &captured.err
	t.Cleanup(func() { stdOut, stdErr = prevOut, prevErr })
	return captured
}

// fixture 返回 internal/config/testdata 下的配置样例；go test 以包目录为工作目录。
func fixture(name string) string {
	return filepath.Join("internal", "config", "testdata", name)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}
