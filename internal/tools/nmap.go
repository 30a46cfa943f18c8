package tools

import (
	"fmt"
	"strings"
	"time"
)

// Nmap はポートスキャナ nmap のアダプター。
type Nmap struct {
	baseAdapter
}

// NewNmap は binary（通常 "nmap"）を使う Nmap アダプターを返す。
func NewNmap(binary string) *Nmap {
	return &Nmap{baseAdapter{
		name:        "nmap",
		description: "Network port scanner and service/OS detection",
		binary:      binary,
	}}
}

// 許可するスキャン種別とタイミングテンプレート。
var (
	nmapScanTypes = map[string]bool{"sV": true, "sS": true, "sT": true, "sA": true, "sU": true, "sn": true, "A": true, "O": true}
	nmapTimings   = map[string]bool{"T0": true, "T1": true, "T2": true, "T3": true, "T4": true, "T5": true}
)

// BuildInvocation は args から nmap コマンドを組み立てる。
// 対応引数: target（必須）, ports, scan_type, timing, timeout。
func (n *Nmap) BuildInvocation(args map[string]any) (*Invocation, error) {
	target, err := requireString(args, "target")
	if err != nil {
		return nil, err
	}
	target, err = sanitizeTarget(target)
	if err != nil {
		return nil, err
	}

	scanType := argString(args, "scan_type")
	if scanType == "" {
		scanType = "sV"
	}
	if !nmapScanTypes[scanType] {
		return nil, fmt.Errorf("%w: unknown scan_type %q", ErrInvalidArguments, scanType)
	}
	timing := argString(args, "timing")
	if timing == "" {
		timing = "T4"
	}
	if !nmapTimings[timing] {
		return nil, fmt.Errorf("%w: unknown timing %q", ErrInvalidArguments, timing)
	}

	cmdArgs := []string{"-" + scanType, "-" + timing, "--open"}
	if ports := argString(args, "ports"); ports != "" {
		ports, err := sanitizePorts(ports)
		if err != nil {
			return nil, err
		}
		cmdArgs = append(cmdArgs, "-p", ports)
	}
	cmdArgs = append(cmdArgs, target)

	return &Invocation{
		Binary:  n.binary,
		Args:    cmdArgs,
		Timeout: time.Duration(argInt(args, "timeout", 300)) * time.Second,
	}, nil
}

// ParseOutput はポート表と OS/サービス行だけを残した要約を返す。
func (n *Nmap) ParseOutput(raw string) string {
	var kept []string
	inTable := false
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "PORT"):
			inTable = true
			kept = append(kept, trimmed)
		case inTable && trimmed == "":
			inTable = false
		case inTable:
			kept = append(kept, trimmed)
		case strings.HasPrefix(trimmed, "Nmap scan report"),
			strings.HasPrefix(trimmed, "Host is"),
			strings.HasPrefix(trimmed, "Service Info:"),
			strings.HasPrefix(trimmed, "OS details:"),
			strings.HasPrefix(trimmed, "Running:"):
			kept = append(kept, trimmed)
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(raw)
	}
	return strings.Join(kept, "\n")
}
