package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Ramsey-USA/mh-website-sub005/internal/config"
	"github.com/Ramsey-USA/mh-website-sub005/internal/version"
)

// InitLogger 按全局配置构建 JSON 日志。每条记录都带 app 与 agent_version，
// 多个站点的 agent 写同一日志汇聚端时可以区分来源。
// 日志文件不可写时降级到 stdout，并额外输出一条 logger_fallback 警告。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	out, fallbackErr := openOutput(cfg)

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.AddHook(&identityHook{app: cfg.AppName, version: version.Version})

	// 第三方库经由 logrus 标准 logger 输出时保持同一格式与目标。
	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(level)

	if fallbackErr != nil {
		fmt.Fprintf(os.Stderr, "logger_fallback: %v\n", fallbackErr)
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogFilePath,
		}).Warn(fallbackErr.Error())
	}
	return logger, nil
}

// openOutput 返回日志目标：未配置文件时为 stdout，否则为 lumberjack 滚动文件。
func openOutput(cfg config.GlobalConfig) (io.Writer, error) {
	if cfg.LogFilePath == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
		return os.Stdout, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}, nil
}

type identityHook struct {
	app     string
	version string
}

func (h *identityHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *identityHook) Fire(entry *logrus.Entry) error {
	if h.app != "" {
		if _, ok := entry.Data["app"]; !ok {
			entry.Data["app"] = h.app
		}
	}
	entry.Data["agent_version"] = h.version
	return nil
}
