package adapter

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"go.uber.org/zap"

	"assetlens/internal/domain"
)

// KindNmap is the source kind of nmap scanner instances
const KindNmap = "nmap"

// NmapSource discovers hosts with nmap. Its records carry no durable agent
// id, so it is a scanner source and only ever correlated heuristically.
type NmapSource struct {
	instanceID        string
	targets           []string
	timeout           time.Duration
	portRange         string
	osDetection       bool
	skipHostDiscovery bool
	logger            *zap.Logger

	mu       sync.Mutex
	running  bool
	lastScan time.Time
	now      func() time.Time
}

// NewNmapSource creates an nmap scanner instance
// targets: list of CIDR ranges or individual IPs to scan
func NewNmapSource(instanceID string, targets []string, logger *zap.Logger, opts ...NmapOption) *NmapSource {
	src := &NmapSource{
		instanceID: instanceID,
		targets:    targets,
		timeout:    10 * time.Minute,
		portRange:  "22,135,139,445,3389,5985",
		logger:     logger.Named("nmap").With(zap.String("instance", instanceID)),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(src)
	}

	return src
}

func (n *NmapSource) Kind() string       { return KindNmap }
func (n *NmapSource) InstanceID() string { return n.instanceID }
func (n *NmapSource) Scanner() bool      { return true }

// Start checks that nmap can be run
func (n *NmapSource) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.isNmapAvailable(ctx) {
		return fmt.Errorf("nmap binary not found in PATH")
	}

	n.running = true
	n.logger.Info("Nmap source started",
		zap.Strings("targets", n.targets),
		zap.String("ports", n.portRange),
		zap.Bool("os_detection", n.osDetection),
	)
	return nil
}

// Stop shuts down the source
func (n *NmapSource) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = false
	return nil
}

// Collect scans every target and returns one record per host found up.
// A failing target is logged and skipped.
func (n *NmapSource) Collect(ctx context.Context) ([]domain.SourceRecord, error) {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil, fmt.Errorf("source not running")
	}
	n.lastScan = n.now()
	n.mu.Unlock()

	if len(n.targets) == 0 {
		n.logger.Warn("No targets configured")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var records []domain.SourceRecord
	for _, target := range n.targets {
		run, err := n.scanTarget(ctx, target)
		if err != nil {
			n.logger.Warn("Scan failed", zap.String("target", target), zap.Error(err))
			continue
		}
		records = append(records, n.recordsFromRun(run)...)
	}

	n.logger.Info("Scan complete", zap.Int("hosts", len(records)))
	return records, nil
}

// isNmapAvailable runs a list scan of localhost
func (n *NmapSource) isNmapAvailable(ctx context.Context) bool {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	)
	if err != nil {
		return false
	}

	_, _, err = scanner.Run()
	return err == nil
}

func (n *NmapSource) scanTarget(ctx context.Context, target string) (*nmap.Run, error) {
	opts := []nmap.Option{
		nmap.WithTargets(target),
		nmap.WithPorts(n.portRange),
	}
	if n.osDetection {
		opts = append(opts, nmap.WithOSDetection())
	}
	if n.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	n.logger.Debug("Scanning target", zap.String("target", target))
	run, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		n.logger.Debug("Scan warnings", zap.String("target", target), zap.Strings("warnings", *warnings))
	}
	if run == nil {
		return nil, fmt.Errorf("nil scan result")
	}
	return run, nil
}

// recordsFromRun converts the hosts of a scan that are up into records
func (n *NmapSource) recordsFromRun(run *nmap.Run) []domain.SourceRecord {
	seen := n.now()
	var records []domain.SourceRecord

	for _, host := range run.Hosts {
		if host.Status.State != "up" || len(host.Addresses) == 0 {
			continue
		}

		rec := domain.SourceRecord{
			SourceKind:       KindNmap,
			SourceInstanceID: n.instanceID,
			LastSeen:         seen,
		}
		for _, addr := range host.Addresses {
			switch addr.AddrType {
			case "ipv4", "ipv6":
				rec.IPs = append(rec.IPs, addr.Addr)
			case "mac":
				rec.MACs = append(rec.MACs, strings.ToUpper(addr.Addr))
			}
		}
		if len(host.Hostnames) > 0 {
			rec.Hostname = host.Hostnames[0].Name
		}
		rec.OS = osFromHost(host.OS)
		rec.ExternalID = externalID(rec)
		if rec.ExternalID == "" {
			continue
		}

		records = append(records, rec)
	}

	return records
}

// externalID keys a scanned host by its first MAC, or its first IP
func externalID(rec domain.SourceRecord) string {
	if len(rec.MACs) > 0 {
		return "mac:" + rec.MACs[0]
	}
	if len(rec.IPs) > 0 {
		return "ip:" + rec.IPs[0]
	}
	return ""
}

// osFromHost returns the OS family of the best match, or its name
func osFromHost(os nmap.OS) string {
	if len(os.Matches) == 0 {
		return ""
	}
	best := os.Matches[0]
	for _, class := range best.Classes {
		if class.Family != "" {
			return class.Family
		}
	}
	return best.Name
}

// expandTargets validates CIDR targets; nmap does the expansion itself
func expandTargets(targets []string) ([]string, error) {
	var expanded []string
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if strings.Contains(target, "/") {
			_, ipNet, err := net.ParseCIDR(target)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %s: %w", target, err)
			}
			expanded = append(expanded, ipNet.String())
			continue
		}
		expanded = append(expanded, target)
	}
	return expanded, nil
}

// parsePorts validates a port list
// Supported: "80,443,8080" or "1-1000" or "22,80-443,8080"
func parsePorts(portRange string) (string, error) {
	for _, part := range strings.Split(portRange, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := parsePort(lo)
		if err != nil {
			return "", err
		}
		if !isRange {
			continue
		}
		end, err := parsePort(hi)
		if err != nil {
			return "", err
		}
		if end < start {
			return "", fmt.Errorf("invalid port range: %s", part)
		}
	}
	return portRange, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port number: %s", s)
	}
	return port, nil
}
