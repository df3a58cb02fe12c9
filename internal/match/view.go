// Package match builds comparable views of source records and the pairwise
// predicates the correlators use to decide whether two records may denote the
// same asset.
package match

import (
	"net"
	"net/netip"
	"strings"

	"assetlens/internal/domain"
)

// View is a normalized, comparable projection of a SourceRecord
type View struct {
	SourceKind       string
	SourceInstanceID string
	Hostname         string
	MACs             map[string]struct{}
	IPs              map[string]struct{}
}

// ignoredMACs never identify a device
var ignoredMACs = map[string]struct{}{
	"00:00:00:00:00:00": {},
	"FF:FF:FF:FF:FF:FF": {},
}

// Normalize builds the comparable view of a record
func Normalize(r domain.SourceRecord) View {
	v := View{
		SourceKind:       r.SourceKind,
		SourceInstanceID: r.SourceInstanceID,
		Hostname:         NormalizeHostname(r.Hostname),
		MACs:             make(map[string]struct{}, len(r.MACs)),
		IPs:              make(map[string]struct{}, len(r.IPs)),
	}
	for _, m := range r.MACs {
		if mac := NormalizeMAC(m); mac != "" {
			v.MACs[mac] = struct{}{}
		}
	}
	for _, ip := range r.IPs {
		if addr := NormalizeIP(ip); addr != "" {
			v.IPs[addr] = struct{}{}
		}
	}
	return v
}

// NormalizeMAC returns the uppercased colon-separated form of a MAC address.
// Unparseable input is uppercased as-is; placeholder addresses yield "".
func NormalizeMAC(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	mac := strings.ToUpper(s)
	if hw, err := net.ParseMAC(s); err == nil {
		mac = strings.ToUpper(hw.String())
	}
	if _, ignored := ignoredMACs[mac]; ignored {
		return ""
	}
	return mac
}

// NormalizeHostname lower-cases a hostname and strips its domain suffix
func NormalizeHostname(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return ""
	}
	// An address reported in the hostname field is not a name
	if _, err := netip.ParseAddr(s); err == nil {
		return ""
	}
	if idx := strings.Index(s, "."); idx > 0 {
		s = s[:idx]
	}
	return s
}

// NormalizeIP canonicalises an IP address, keeping unparseable input trimmed
func NormalizeIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String()
	}
	return strings.ToLower(s)
}

// HasIdentity reports whether the view carries a MAC or a hostname
func (v View) HasIdentity() bool {
	return len(v.MACs) > 0 || v.Hostname != ""
}

// IPList returns the view's IPs in no particular order
func (v View) IPList() []string {
	out := make([]string, 0, len(v.IPs))
	for ip := range v.IPs {
		out = append(out, ip)
	}
	return out
}
