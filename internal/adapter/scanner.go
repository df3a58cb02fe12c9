package adapter

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"assetlens/internal/domain"
)

// KindTCPScan is the source kind of the built-in TCP connect scanner
const KindTCPScan = "tcpscan"

// ScannerConfig holds configuration for the TCP subnet scanner
type ScannerConfig struct {
	// Targets are CIDR ranges or single IPv4 addresses
	Targets []string
	// DiscoveryPorts are probed to find live hosts
	DiscoveryPorts []int
	// Timeout for individual connection attempts
	Timeout time.Duration
	// MaxConcurrent limits parallel probe operations
	MaxConcurrent int
	// ARPTable is read for MAC addresses of live hosts
	ARPTable string
}

// DefaultScannerConfig returns sensible defaults for LAN scanning
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		DiscoveryPorts: []int{22, 135, 445, 3389, 5985, 80, 443},
		Timeout:        1 * time.Second,
		MaxConcurrent:  200,
		ARPTable:       "/proc/net/arp",
	}
}

// discoveredHost is a host found during scanning
type discoveredHost struct {
	IP         string
	Hostname   string
	OpenPorts  []int
	MACAddress string
}

// TCPScanSource discovers hosts with plain TCP connects. It needs no
// external binary, so it serves where nmap is unavailable.
type TCPScanSource struct {
	instanceID string
	config     ScannerConfig
	logger     *zap.Logger
	lookupAddr func(ctx context.Context, ip string) ([]string, error)
	now        func() time.Time

	mu       sync.Mutex
	scanning bool
}

// NewTCPScanSource creates a TCP scanner instance
func NewTCPScanSource(instanceID string, config ScannerConfig, logger *zap.Logger) *TCPScanSource {
	defaults := DefaultScannerConfig()
	if len(config.DiscoveryPorts) == 0 {
		config.DiscoveryPorts = defaults.DiscoveryPorts
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	return &TCPScanSource{
		instanceID: instanceID,
		config:     config,
		logger:     logger.Named("tcpscan").With(zap.String("instance", instanceID)),
		lookupAddr: net.DefaultResolver.LookupAddr,
		now:        time.Now,
	}
}

func (s *TCPScanSource) Kind() string                    { return KindTCPScan }
func (s *TCPScanSource) InstanceID() string              { return s.instanceID }
func (s *TCPScanSource) Scanner() bool                   { return true }
func (s *TCPScanSource) Start(ctx context.Context) error { return nil }
func (s *TCPScanSource) Stop() error                     { return nil }

// Collect scans every target and returns one record per live host
func (s *TCPScanSource) Collect(ctx context.Context) ([]domain.SourceRecord, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil, fmt.Errorf("scan already in progress")
	}
	s.scanning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	var ips []string
	for _, target := range s.config.Targets {
		expanded, err := expandCIDR(target)
		if err != nil {
			return nil, fmt.Errorf("invalid target %s: %w", target, err)
		}
		ips = append(ips, expanded...)
	}
	if len(ips) == 0 {
		return nil, nil
	}

	s.logger.Info("Starting scan", zap.Int("ips", len(ips)), zap.Ints("ports", s.config.DiscoveryPorts))
	live, err := s.discoverHosts(ctx, ips)
	if err != nil {
		return nil, err
	}

	arp := s.readARPTable()
	seen := s.now()
	records := make([]domain.SourceRecord, 0, len(live))
	for _, host := range live {
		host.Hostname = s.reverseDNS(ctx, host.IP)
		host.MACAddress = arp[host.IP]
		records = append(records, hostRecord(s.instanceID, host, seen))
	}

	s.logger.Info("Scan complete", zap.Int("hosts", len(records)))
	return records, nil
}

// discoverHosts finds live hosts by probing discovery ports
func (s *TCPScanSource) discoverHosts(ctx context.Context, ips []string) ([]discoveredHost, error) {
	open := make(map[string][]int)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	for _, ip := range ips {
		for _, port := range s.config.DiscoveryPorts {
			g.Go(func() error {
				if s.probePort(gctx, ip, port) {
					mu.Lock()
					open[ip] = append(open[ip], port)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hosts := make([]discoveredHost, 0, len(open))
	for ip, ports := range open {
		sort.Ints(ports)
		hosts = append(hosts, discoveredHost{IP: ip, OpenPorts: ports})
	}
	sort.Slice(hosts, func(i, j int) bool {
		return ipLess(hosts[i].IP, hosts[j].IP)
	})
	return hosts, nil
}

// probePort attempts to connect to a TCP port
func (s *TCPScanSource) probePort(ctx context.Context, ip string, port int) bool {
	dialer := net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// reverseDNS performs a reverse DNS lookup
func (s *TCPScanSource) reverseDNS(ctx context.Context, ip string) string {
	names, err := s.lookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// readARPTable maps IPs to MACs from the kernel neighbour cache. Best effort.
func (s *TCPScanSource) readARPTable() map[string]string {
	if s.config.ARPTable == "" {
		return nil
	}
	f, err := os.Open(s.config.ARPTable)
	if err != nil {
		s.logger.Debug("ARP table unavailable", zap.Error(err))
		return nil
	}
	defer f.Close()
	return parseARPTable(f)
}

// parseARPTable reads /proc/net/arp formatted text
// Format: IP address  HW type  Flags  HW address  Mask  Device
func parseARPTable(r io.Reader) map[string]string {
	table := make(map[string]string)
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		// Flags 0x0 marks an incomplete entry
		if fields[2] == "0x0" || fields[3] == "00:00:00:00:00:00" {
			continue
		}
		table[fields[0]] = strings.ToUpper(fields[3])
	}
	return table
}

// hostRecord converts a discovered host into a record
func hostRecord(instanceID string, host discoveredHost, seen time.Time) domain.SourceRecord {
	rec := domain.SourceRecord{
		SourceKind:       KindTCPScan,
		SourceInstanceID: instanceID,
		Hostname:         host.Hostname,
		IPs:              []string{host.IP},
		OS:               guessOS(host.OpenPorts),
		LastSeen:         seen,
	}
	if host.MACAddress != "" {
		rec.MACs = []string{host.MACAddress}
	}
	rec.ExternalID = externalID(rec)
	return rec
}

// guessOS infers an OS family from remote management ports
func guessOS(ports []int) string {
	portSet := make(map[int]bool, len(ports))
	for _, p := range ports {
		portSet[p] = true
	}

	switch {
	case portSet[3389], portSet[5985], portSet[135]:
		return string(domain.OSWindows)
	case portSet[22] && !portSet[445]:
		return string(domain.OSLinux)
	}
	return ""
}

func ipLess(a, b string) bool {
	ia, ib := net.ParseIP(a).To4(), net.ParseIP(b).To4()
	if ia == nil || ib == nil {
		return a < b
	}
	return binary.BigEndian.Uint32(ia) < binary.BigEndian.Uint32(ib)
}

// expandCIDR converts a CIDR notation to a list of IPs
func expandCIDR(cidr string) ([]string, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		if ip := net.ParseIP(cidr); ip != nil {
			return []string{ip.String()}, nil
		}
		return nil, err
	}

	ip := ipNet.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("only IPv4 supported")
	}

	mask := ipNet.Mask
	networkInt := binary.BigEndian.Uint32(ip)
	maskInt := binary.BigEndian.Uint32(mask)

	firstIP := networkInt & maskInt
	lastIP := firstIP | ^maskInt

	// Skip network and broadcast addresses for /24 and larger
	ones, bits := mask.Size()
	if ones <= 24 && bits == 32 {
		firstIP++
		lastIP--
	}

	if lastIP-firstIP > 1024 {
		return nil, fmt.Errorf("CIDR range too large (max 1024 IPs)")
	}

	var ips []string
	for i := firstIP; i <= lastIP; i++ {
		ipBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(ipBytes, i)
		ips = append(ips, net.IP(ipBytes).String())
	}
	return ips, nil
}
