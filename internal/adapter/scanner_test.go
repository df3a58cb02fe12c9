package adapter

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"assetlens/internal/domain"
)

func TestTCPScanSource_Collect(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	port := listener.Addr().(*net.TCPAddr).Port

	seen := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	src := NewTCPScanSource("scan-1", ScannerConfig{
		Targets:        []string{"127.0.0.1/32"},
		DiscoveryPorts: []int{port},
		Timeout:        500 * time.Millisecond,
	}, zap.NewNop())
	src.lookupAddr = func(ctx context.Context, ip string) ([]string, error) {
		return []string{"localhost.lan."}, nil
	}
	src.now = func() time.Time { return seen }

	records, err := src.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, KindTCPScan, rec.SourceKind)
	assert.Equal(t, "scan-1", rec.SourceInstanceID)
	assert.Equal(t, "ip:127.0.0.1", rec.ExternalID)
	assert.Equal(t, []string{"127.0.0.1"}, rec.IPs)
	assert.Equal(t, "localhost.lan", rec.Hostname)
	assert.Equal(t, seen, rec.LastSeen)
}

func TestTCPScanSource_CollectInvalidTarget(t *testing.T) {
	src := NewTCPScanSource("scan-1", ScannerConfig{Targets: []string{"not-an-ip"}}, zap.NewNop())
	_, err := src.Collect(context.Background())
	assert.Error(t, err)
}

func TestTCPScanSource_ReverseDNSFailure(t *testing.T) {
	src := NewTCPScanSource("scan-1", ScannerConfig{}, zap.NewNop())
	src.lookupAddr = func(ctx context.Context, ip string) ([]string, error) {
		return nil, errors.New("nxdomain")
	}
	assert.Empty(t, src.reverseDNS(context.Background(), "10.0.0.1"))
}

func TestParseARPTable(t *testing.T) {
	input := `IP address       HW type     Flags       HW address            Mask     Device
192.168.1.1      0x1         0x2         aa:bb:cc:dd:ee:01     *        eth0
192.168.1.20     0x1         0x0         00:00:00:00:00:00     *        eth0
192.168.1.30     0x1         0x2         aa:bb:cc:dd:ee:1e     *        eth0
`
	table := parseARPTable(strings.NewReader(input))
	assert.Equal(t, map[string]string{
		"192.168.1.1":  "AA:BB:CC:DD:EE:01",
		"192.168.1.30": "AA:BB:CC:DD:EE:1E",
	}, table)
}

func TestHostRecord(t *testing.T) {
	rec := hostRecord("scan-1", discoveredHost{
		IP:         "10.0.0.7",
		Hostname:   "win-07",
		OpenPorts:  []int{135, 445, 3389},
		MACAddress: "AA:BB:CC:00:00:07",
	}, time.Now())

	assert.Equal(t, "mac:AA:BB:CC:00:00:07", rec.ExternalID)
	assert.Equal(t, []string{"AA:BB:CC:00:00:07"}, rec.MACs)
	assert.Equal(t, domain.OSWindows, rec.OSType())
}

func TestGuessOS(t *testing.T) {
	assert.Equal(t, "windows", guessOS([]int{3389}))
	assert.Equal(t, "linux", guessOS([]int{22, 80}))
	assert.Equal(t, "", guessOS([]int{22, 445}))
	assert.Equal(t, "", guessOS([]int{80, 443}))
}

func TestExpandCIDR(t *testing.T) {
	tests := []struct {
		input   string
		count   int
		first   string
		wantErr bool
	}{
		{"192.168.1.0/24", 254, "192.168.1.1", false},
		{"10.0.0.0/30", 4, "10.0.0.0", false},
		{"10.0.0.9", 1, "10.0.0.9", false},
		{"10.0.0.0/16", 0, "", true},
		{"fd00::/120", 0, "", true},
		{"bogus", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ips, err := expandCIDR(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, ips, tt.count)
			assert.Equal(t, tt.first, ips[0])
		})
	}
}

func TestIPLess(t *testing.T) {
	assert.True(t, ipLess("10.0.0.2", "10.0.0.10"))
	assert.False(t, ipLess("10.0.1.0", "10.0.0.255"))
}
