package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ToolDef はYAMLから読み込むツール定義。
// Goコードを書かずに tools/*.yaml を追加するだけで新ツールが使える。
type ToolDef struct {
	Name         string   `yaml:"name"`
	Binary       string   `yaml:"binary"`
	Description  string   `yaml:"description"`
	Dangerous    bool     `yaml:"dangerous"`
	TimeoutSec   int      `yaml:"timeout"`
	ArgsTemplate string   `yaml:"args_template"`
	DefaultArgs  []string `yaml:"default_args"`
	Output       struct {
		HeadLines int `yaml:"head_lines"`
		TailLines int `yaml:"tail_lines"`
	} `yaml:"output"`
}

func (d *ToolDef) validate() error {
	if d.Name == "" {
		return fmt.Errorf("tools: yaml def missing name")
	}
	if d.Binary == "" {
		return fmt.Errorf("tools: yaml def %q missing binary", d.Name)
	}
	return nil
}

// yamlAdapter は ToolDef を Adapter 契約に載せる。
type yamlAdapter struct {
	baseAdapter
	def *ToolDef
}

func newYAMLAdapter(def *ToolDef) *yamlAdapter {
	return &yamlAdapter{
		baseAdapter: baseAdapter{
			name:        def.Name,
			description: def.Description,
			binary:      def.Binary,
			dangerous:   def.Dangerous,
		},
		def: def,
	}
}

func (y *yamlAdapter) BuildInvocation(args map[string]any) (*Invocation, error) {
	cliArgs, err := buildTemplateArgs(y.def.ArgsTemplate, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	for _, a := range cliArgs {
		if dangerousChars.MatchString(a) {
			return nil, fmt.Errorf("%w: argument %q contains shell metacharacters", ErrInvalidArguments, a)
		}
	}

	timeout := y.def.TimeoutSec
	if timeout <= 0 {
		timeout = 300
	}
	return &Invocation{
		Binary:  y.def.Binary,
		Args:    append(append([]string{}, y.def.DefaultArgs...), cliArgs...),
		Timeout: time.Duration(timeout) * time.Second,
	}, nil
}

// ParseOutput は定義された head/tail 行数で切り詰めるだけ。構造解釈はしない。
func (y *yamlAdapter) ParseOutput(raw string) string {
	head, tail := y.def.Output.HeadLines, y.def.Output.TailLines
	if head <= 0 {
		head = DefaultHeadLines
	}
	if tail <= 0 {
		tail = DefaultTailLines
	}
	return headTail(raw, head, tail)
}

// templateTokenRe は "{key}" または "{key!}"（必須マーカー付き）を検出する。
var templateTokenRe = regexp.MustCompile(`\{(\w+)(!?)\}`)

// buildTemplateArgs は args_template を展開して CLI 引数スライスを生成する。
//
// テンプレートルール:
//   - {key}  : args[key] が存在すれば展開。なければそのトークンを除去。
//   - {key!} : args[key] が必須。なければエラー。
//   - "-p {ports}" のようにリテラルが直前にある場合は一体で扱い、
//     キーが欠けていればリテラルごと落とす。
func buildTemplateArgs(template string, args map[string]any) ([]string, error) {
	tokens := strings.Fields(template)
	var result []string

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		// リテラル + 後続の {key} は一体のグループとして扱う
		if !templateTokenRe.MatchString(tok) {
			if i+1 < len(tokens) && templateTokenRe.MatchString(tokens[i+1]) {
				vals, skip, err := expandToken(tokens[i+1], args)
				if err != nil {
					return nil, err
				}
				if !skip {
					result = append(result, tok)
					result = append(result, vals...)
				}
				i++
				continue
			}
			result = append(result, tok)
			continue
		}

		vals, skip, err := expandToken(tok, args)
		if err != nil {
			return nil, err
		}
		if !skip {
			result = append(result, vals...)
		}
	}

	return result, nil
}

func expandToken(tok string, args map[string]any) (vals []string, skip bool, err error) {
	m := templateTokenRe.FindStringSubmatch(tok)
	key, required := m[1], m[2] == "!"

	raw, exists := args[key]
	if !exists || raw == nil {
		if required {
			return nil, false, fmt.Errorf("required key %q missing", key)
		}
		return nil, true, nil
	}

	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, true, nil
		}
		return strings.Fields(v), false, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out, false, nil
	default:
		return []string{fmt.Sprintf("%v", v)}, false, nil
	}
}

// LoadDir は dir 以下の *.yaml をツール定義として読み込み登録する。
// ディレクトリが存在しない場合は何もしない（カスタムツールは任意）。
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("tools: read dir %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("tools: read %s: %w", path, err)
		}
		var def ToolDef
		if err := yaml.Unmarshal(data, &def); err != nil {
			return fmt.Errorf("tools: parse %s: %w", path, err)
		}
		if err := def.validate(); err != nil {
			return fmt.Errorf("tools: %s: %w", path, err)
		}
		r.Register(newYAMLAdapter(&def))
	}
	return nil
}
