package domain

import (
	"errors"
	"strings"
	"time"
)

// OSType is the coarse operating system family used to pick identification commands
type OSType string

const (
	OSLinux   OSType = "linux"
	OSWindows OSType = "windows"
	OSDarwin  OSType = "darwin"
	OSUnknown OSType = "unknown"
)

// KnownOSTypes lists the OS types a command table may be keyed by
var KnownOSTypes = []OSType{OSLinux, OSWindows, OSDarwin}

var (
	// ErrInconsistentOS is returned when an entity's records disagree on the OS type
	ErrInconsistentOS = errors.New("records report inconsistent os types")
	// ErrUnknownOS is returned when no record of an entity reports a usable OS
	ErrUnknownOS = errors.New("os type could not be determined")
)

// ParseOSType maps a free-form OS string reported by a source onto an OSType
func ParseOSType(s string) OSType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return OSUnknown
	}

	switch {
	case strings.Contains(s, "windows"), strings.HasPrefix(s, "win"):
		return OSWindows
	case strings.Contains(s, "darwin"), strings.Contains(s, "mac os"),
		strings.Contains(s, "macos"), strings.Contains(s, "os x"):
		return OSDarwin
	}

	for _, hint := range linuxHints {
		if strings.Contains(s, hint) {
			return OSLinux
		}
	}
	return OSUnknown
}

var linuxHints = []string{
	"linux", "ubuntu", "debian", "centos", "rhel", "red hat", "fedora",
	"suse", "alpine", "amazon", "rocky", "alma", "arch",
}

// IsKnown reports whether the OS type is one a command table can target
func (o OSType) IsKnown() bool {
	for _, k := range KnownOSTypes {
		if o == k {
			return true
		}
	}
	return false
}

// SourceRecord is one asset as reported by one source instance
type SourceRecord struct {
	SourceKind       string    `json:"source_kind"`
	SourceInstanceID string    `json:"source_instance_id"`
	ExternalID       string    `json:"external_id"`
	Hostname         string    `json:"hostname,omitempty"`
	MACs             []string  `json:"macs,omitempty"`
	IPs              []string  `json:"ips,omitempty"`
	OS               string    `json:"os,omitempty"`
	LastSeen         time.Time `json:"last_seen"`
}

// Ref returns the edge reference for this record
func (r SourceRecord) Ref() RecordRef {
	return RecordRef{
		SourceKind:       r.SourceKind,
		SourceInstanceID: r.SourceInstanceID,
		ExternalID:       r.ExternalID,
	}
}

// OSType returns the parsed OS family of the record
func (r SourceRecord) OSType() OSType {
	return ParseOSType(r.OS)
}
