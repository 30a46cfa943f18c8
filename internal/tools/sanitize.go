package tools

import (
	"fmt"
	"regexp"
	"strings"
)

// コマンドインジェクション対策の入力検証。
// exec.CommandContext はシェルを経由しないが、ツール側が引数を再解釈する
// ケース（nmap --script 等）のために危険文字を一律拒否する。

var (
	dangerousChars = regexp.MustCompile("[;&|`$<>!]")
	safeURLPattern = regexp.MustCompile(`^https?://[a-zA-Z0-9.\-_:/\[\]@%?=&+]+$`)
	portPattern    = regexp.MustCompile(`^\d{1,5}(-\d{1,5})?(,\d{1,5}(-\d{1,5})?)*$`)
)

// sanitizeTarget は IP/ホスト名/URL のターゲット引数を検証して返す。
func sanitizeTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("%w: target must not be empty", ErrInvalidArguments)
	}
	if len(target) > 255 {
		return "", fmt.Errorf("%w: target too long", ErrInvalidArguments)
	}
	// URL フラグメントは落とす。CLI ツールはフラグメントを解さず、
	// nikto / whatweb は挙動が不安定になる。
	if i := strings.Index(target, "#"); i >= 0 {
		target = strings.TrimRight(target[:i], "/")
	}
	if dangerousChars.MatchString(target) {
		return "", fmt.Errorf("%w: target contains dangerous characters: %q", ErrInvalidArguments, target)
	}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		if !safeURLPattern.MatchString(target) {
			return "", fmt.Errorf("%w: unsafe URL: %q", ErrInvalidArguments, target)
		}
	}
	return target, nil
}

// sanitizePorts は "80" / "1-1024" / "80,443,8000-8100" 形式を検証して返す。
func sanitizePorts(ports string) (string, error) {
	ports = strings.TrimSpace(ports)
	if ports == "-" { // nmap の全ポート指定
		return ports, nil
	}
	if !portPattern.MatchString(ports) {
		return "", fmt.Errorf("%w: invalid port specification: %q", ErrInvalidArguments, ports)
	}
	return ports, nil
}

// sanitizePath は wordlist 等のファイルパス引数を検証して返す。
func sanitizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: path must not be empty", ErrInvalidArguments)
	}
	if dangerousChars.MatchString(path) {
		return "", fmt.Errorf("%w: path contains dangerous characters: %q", ErrInvalidArguments, path)
	}
	return path, nil
}
