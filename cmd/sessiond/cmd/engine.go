package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/config"
)

// buildEngine loads configuration, reports lint findings and builds the
// engine. The caller closes it.
func buildEngine(ctx context.Context) (*config.Config, *goSession.Engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	sessCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	for _, w := range sessCfg.Lint() {
		entry := log.WithFields(logrus.Fields{"code": w.Code, "severity": w.Severity.String()})
		switch w.Severity {
		case goSession.LintHigh, goSession.LintWarn:
			entry.Warn(w.Message)
		default:
			entry.Info(w.Message)
		}
	}

	// Audit events go to the logger (stderr); stdout is reserved for
	// command output.
	engine, err := goSession.New().
		WithConfig(sessCfg).
		WithLogger(log).
		WithAuditSink(goSession.NewLogSink(log)).
		BuildContext(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("building engine: %w", err)
	}
	return cfg, engine, nil
}
