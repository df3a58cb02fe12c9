package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"assetlens/internal/adapter"
	"assetlens/internal/codec"
	"assetlens/internal/config"
	"assetlens/internal/domain"
)

// registerSources registers the built-in scanners and every configured external source
func registerSources(registry *adapter.Registry, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Nmap.Enabled {
		nmapOpts := []adapter.NmapOption{
			adapter.WithOSDetection(cfg.Nmap.OSDetection),
			adapter.WithSkipHostDiscovery(cfg.Nmap.SkipHostDiscovery),
			adapter.WithTimeout(cfg.Nmap.Timeout.Duration()),
		}
		if cfg.Nmap.Ports != "" {
			nmapOpts = append(nmapOpts, adapter.WithPortRange(cfg.Nmap.Ports))
		}
		src := adapter.NewNmapSource(cfg.Nmap.InstanceID, cfg.Nmap.Targets, logger, nmapOpts...)
		if err := registry.Register(src, adapter.SourceConfig{Enabled: true}); err != nil {
			return err
		}
	}

	if cfg.TCPScan.Enabled {
		scanCfg := adapter.DefaultScannerConfig()
		scanCfg.Targets = cfg.TCPScan.Targets
		if len(cfg.TCPScan.Ports) > 0 {
			scanCfg.DiscoveryPorts = cfg.TCPScan.Ports
		}
		scanCfg.Timeout = cfg.TCPScan.Timeout.Duration()
		scanCfg.MaxConcurrent = cfg.TCPScan.MaxConcurrent
		src := adapter.NewTCPScanSource(cfg.TCPScan.InstanceID, scanCfg, logger)
		if err := registry.Register(src, adapter.SourceConfig{Enabled: true}); err != nil {
			return err
		}
	}

	for _, sc := range cfg.Sources {
		src := adapter.NewStaticSource(sc.Kind, sc.InstanceID, nil)
		err := registry.Register(src, adapter.SourceConfig{
			Enabled:  !sc.Disabled,
			Commands: sc.CommandTable(),
		})
		if err != nil {
			return fmt.Errorf("source %s: %w", sc.InstanceID, err)
		}
	}

	return nil
}

func sshExecutorConfig(c config.SSHConfig) adapter.SSHExecutorConfig {
	ec := adapter.DefaultSSHExecutorConfig()
	ec.User = c.User
	ec.KeyPath = c.KeyPath
	ec.Passphrase = c.Passphrase
	ec.Password = c.Password
	ec.Port = c.Port
	ec.Kinds = c.Kinds
	ec.KnownHostsPath = c.KnownHosts
	ec.ConnectionTimeout = c.ConnectTimeout.Duration()
	ec.CommandTimeout = c.CommandTimeout.Duration()
	ec.MaxConcurrent = c.MaxConcurrent
	ec.DialRate = c.DialRate
	ec.DialBurst = c.DialBurst
	return ec
}

// scannerInstances maps the instances whose records may enter the heuristic pass to their kind
func scannerInstances(cfg *config.Config) map[string]string {
	instances := make(map[string]string)
	for _, sc := range cfg.Sources {
		if sc.Scanner && !sc.Disabled {
			instances[sc.InstanceID] = sc.Kind
		}
	}
	return instances
}

// importRecords reads records from a file, keeping those of configured scanner instances
func importRecords(path string, scanners map[string]string, logger *zap.Logger) ([]domain.SourceRecord, error) {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	importer, _, ok := codec.ForFormat(format)
	if !ok {
		return nil, fmt.Errorf("import %s: unsupported format %q", path, format)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	defer f.Close()

	parsed, err := importer.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}

	records := make([]domain.SourceRecord, 0, len(parsed))
	for _, r := range parsed {
		kind, ok := scanners[r.SourceInstanceID]
		if !ok {
			logger.Warn("Skipping imported record of unknown scanner instance",
				zap.String("source_instance", r.SourceInstanceID),
				zap.String("hostname", r.Hostname),
			)
			continue
		}
		r.SourceKind = kind
		records = append(records, r)
	}

	logger.Info("Imported scanner records",
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("skipped", len(parsed)-len(records)),
	)
	return records, nil
}
