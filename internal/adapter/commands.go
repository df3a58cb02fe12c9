package adapter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"assetlens/internal/correlate"
	"assetlens/internal/domain"
)

// Known source kinds with built-in identification commands
const (
	KindMachineID   = "machineid"
	KindCrowdStrike = "crowdstrike"
	KindOsquery     = "osquery"
)

// ParserFunc extracts a source kind's native id from identification output
type ParserFunc func(out correlate.Output) (string, error)

// DefaultCorrelationCommands are the identification commands per kind and OS
var DefaultCorrelationCommands = map[string]map[domain.OSType]string{
	KindMachineID: {
		domain.OSLinux:   "cat /etc/machine-id 2>/dev/null || cat /var/lib/dbus/machine-id",
		domain.OSWindows: `powershell -NoProfile -Command "(Get-ItemProperty 'HKLM:\SOFTWARE\Microsoft\Cryptography').MachineGuid"`,
		domain.OSDarwin:  `ioreg -rd1 -c IOPlatformExpertDevice | awk -F'"' '/IOPlatformUUID/{print $4}'`,
	},
	KindCrowdStrike: {
		domain.OSLinux:   "sudo /opt/CrowdStrike/falconctl -g --aid",
		domain.OSWindows: `reg query HKLM\SYSTEM\CurrentControlSet\services\CSAgent\Sim /v AG`,
		domain.OSDarwin:  "sudo /Applications/Falcon.app/Contents/Resources/falconctl stats agent_info | grep -i agentid",
	},
	KindOsquery: {
		domain.OSLinux:   `osqueryi --json "select uuid from system_info"`,
		domain.OSWindows: `osqueryi.exe --json "select uuid from system_info"`,
		domain.OSDarwin:  `osqueryi --json "select uuid from system_info"`,
	},
}

// DefaultParsers maps known kinds to their output parsers
var DefaultParsers = map[string]ParserFunc{
	KindMachineID:   parseMachineID,
	KindCrowdStrike: parseFalconAID,
	KindOsquery:     parseOsqueryUUID,
}

var (
	uuidPattern  = regexp.MustCompile(`^[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12}$`)
	falconAIDPat = regexp.MustCompile(`(?i)(?:aid="?|agentid:\s*|REG_BINARY\s+)([0-9a-f-]{32,36})`)
)

// parseMachineID accepts a machine-id, a MachineGuid or an IOPlatformUUID
// Format: 32 hex digits, or a dashed UUID
func parseMachineID(out correlate.Output) (string, error) {
	id := strings.TrimSpace(out.Text)
	if id == "" {
		return "", fmt.Errorf("empty machine id output")
	}
	if !uuidPattern.MatchString(id) {
		return "", fmt.Errorf("unrecognised machine id %q", id)
	}
	return strings.ToLower(id), nil
}

// parseFalconAID extracts the CrowdStrike agent id.
// Linux: aid="0123456789abcdef0123456789abcdef".
// Windows: AG    REG_BINARY    0123456789ABCDEF0123456789ABCDEF
// macOS: agentID: 01234567-89AB-CDEF-0123-456789ABCDEF
func parseFalconAID(out correlate.Output) (string, error) {
	m := falconAIDPat.FindStringSubmatch(out.Text)
	if m == nil {
		return "", fmt.Errorf("no agent id in falcon output")
	}
	aid := strings.ToLower(strings.ReplaceAll(m[1], "-", ""))
	if len(aid) != 32 {
		return "", fmt.Errorf("malformed agent id %q", m[1])
	}
	return aid, nil
}

// parseOsqueryUUID reads the uuid column of osqueryi --json output
func parseOsqueryUUID(out correlate.Output) (string, error) {
	var rows []struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.Text)), &rows); err != nil {
		return "", fmt.Errorf("parse osquery output: %w", err)
	}
	if len(rows) == 0 || rows[0].UUID == "" {
		return "", fmt.Errorf("osquery returned no uuid")
	}
	return strings.ToLower(rows[0].UUID), nil
}

// parseSingleLine is used for kinds without a dedicated parser
func parseSingleLine(out correlate.Output) (string, error) {
	id := strings.TrimSpace(out.Text)
	if id == "" {
		return "", fmt.Errorf("empty output")
	}
	if strings.ContainsAny(id, "\r\n") {
		return "", fmt.Errorf("multi-line output")
	}
	return id, nil
}
