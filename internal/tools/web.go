package tools

import (
	"fmt"
	"strings"
	"time"
)

// Nikto は Web サーバー脆弱性スキャナのアダプター。
type Nikto struct {
	baseAdapter
}

func NewNikto(binary string) *Nikto {
	return &Nikto{baseAdapter{
		name:        "nikto",
		description: "Web server vulnerability scanner",
		binary:      binary,
	}}
}

// BuildInvocation の対応引数: target（必須）, port, timeout。
func (n *Nikto) BuildInvocation(args map[string]any) (*Invocation, error) {
	target, err := requireString(args, "target")
	if err != nil {
		return nil, err
	}
	target, err = sanitizeTarget(target)
	if err != nil {
		return nil, err
	}

	cmdArgs := []string{"-h", target, "-nointeractive"}
	if port := argInt(args, "port", 0); port > 0 {
		p, err := sanitizePorts(argString(args, "port"))
		if err != nil {
			return nil, err
		}
		cmdArgs = append(cmdArgs, "-p", p)
	}

	return &Invocation{
		Binary:  n.binary,
		Args:    cmdArgs,
		Timeout: time.Duration(argInt(args, "timeout", 600)) * time.Second,
	}, nil
}

// ParseOutput は "+ " で始まる発見行だけを残す。
func (n *Nikto) ParseOutput(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "+ ") {
			kept = append(kept, trimmed)
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(raw)
	}
	return strings.Join(kept, "\n")
}

// Gobuster はコンテンツ/サブドメイン探索ツールのアダプター。
// ワードリスト総当たりはターゲットへの負荷が大きいため要承認。
type Gobuster struct {
	baseAdapter
}

func NewGobuster(binary string) *Gobuster {
	return &Gobuster{baseAdapter{
		name:        "gobuster",
		description: "Directory/file and DNS brute-forcing tool",
		binary:      binary,
		dangerous:   true,
	}}
}

// BuildInvocation の対応引数: target（必須）, wordlist（必須）, mode, timeout。
func (g *Gobuster) BuildInvocation(args map[string]any) (*Invocation, error) {
	target, err := requireString(args, "target")
	if err != nil {
		return nil, err
	}
	target, err = sanitizeTarget(target)
	if err != nil {
		return nil, err
	}
	wordlist, err := requireString(args, "wordlist")
	if err != nil {
		return nil, err
	}
	wordlist, err = sanitizePath(wordlist)
	if err != nil {
		return nil, err
	}

	mode := argString(args, "mode")
	if mode == "" {
		mode = "dir"
	}
	var cmdArgs []string
	switch mode {
	case "dir":
		cmdArgs = []string{"dir", "-u", target, "-w", wordlist, "-q"}
	case "dns":
		cmdArgs = []string{"dns", "-d", target, "-w", wordlist, "-q"}
	default:
		return nil, fmt.Errorf("%w: unknown mode %q (want dir or dns)", ErrInvalidArguments, mode)
	}

	return &Invocation{
		Binary:  g.binary,
		Args:    cmdArgs,
		Timeout: time.Duration(argInt(args, "timeout", 600)) * time.Second,
	}, nil
}

func (g *Gobuster) ParseOutput(raw string) string {
	return strings.TrimSpace(raw)
}

// Whatweb は Web 技術フィンガープリンティングツールのアダプター。
type Whatweb struct {
	baseAdapter
}

func NewWhatweb(binary string) *Whatweb {
	return &Whatweb{baseAdapter{
		name:        "whatweb",
		description: "Web technology fingerprinting",
		binary:      binary,
	}}
}

// BuildInvocation の対応引数: target（必須）, aggression。
func (w *Whatweb) BuildInvocation(args map[string]any) (*Invocation, error) {
	target, err := requireString(args, "target")
	if err != nil {
		return nil, err
	}
	target, err = sanitizeTarget(target)
	if err != nil {
		return nil, err
	}

	cmdArgs := []string{"--no-errors", "--color=never", target}
	if a := argInt(args, "aggression", 0); a >= 1 && a <= 4 {
		cmdArgs = append([]string{"-a", argString(args, "aggression")}, cmdArgs...)
	}

	return &Invocation{
		Binary:  w.binary,
		Args:    cmdArgs,
		Timeout: time.Duration(argInt(args, "timeout", 120)) * time.Second,
	}, nil
}

// ParseOutput は whatweb の1行サマリーを読みやすく分解する。
func (w *Whatweb) ParseOutput(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, " ["); i > 0 {
		header := raw[:i]
		rest := strings.ReplaceAll(raw[i:], "], ", "]\n")
		return header + "\n" + strings.TrimSpace(rest)
	}
	return raw
}
