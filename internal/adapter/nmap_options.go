package adapter

import "time"

// NmapOption is a functional option for configuring NmapSource
type NmapOption func(*NmapSource)

// WithTimeout bounds a whole collection
func WithTimeout(d time.Duration) NmapOption {
	return func(n *NmapSource) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithPortRange sets the ports to scan. Invalid lists are ignored.
// Format: "80,443,8080" or "1-1000" or "22,80-443,8080"
func WithPortRange(ports string) NmapOption {
	return func(n *NmapSource) {
		if validated, err := parsePorts(ports); err == nil {
			n.portRange = validated
		}
	}
}

// WithOSDetection enables OS detection (-O), which requires root
func WithOSDetection(enabled bool) NmapOption {
	return func(n *NmapSource) {
		n.osDetection = enabled
	}
}

// WithSkipHostDiscovery treats all hosts as online (-Pn)
func WithSkipHostDiscovery(skip bool) NmapOption {
	return func(n *NmapSource) {
		n.skipHostDiscovery = skip
	}
}

// WithTargets replaces the target list. Invalid CIDRs make it a no-op.
func WithTargets(targets []string) NmapOption {
	return func(n *NmapSource) {
		if expanded, err := expandTargets(targets); err == nil {
			n.targets = expanded
		}
	}
}

// WithFastScan restricts the scan to the remote management ports
func WithFastScan() NmapOption {
	return func(n *NmapSource) {
		n.portRange = "22,3389,5985"
		n.timeout = 5 * time.Minute
	}
}
