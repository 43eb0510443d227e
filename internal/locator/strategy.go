package locator

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/RecoveryAshes/cnkifetch/internal/browser"
	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

// DefaultVersion 默认使用的策略表版本
const DefaultVersion = "cnki-2024.10"

//go:embed tables/*.yaml
var tablesFS embed.FS

// Mode 策略的匹配方式
type Mode string

const (
	ModeCSS          Mode = "css"
	ModeXPath        Mode = "xpath"
	ModeTextExact    Mode = "text-exact"    // CSS范围内文本完全相同
	ModeTextContains Mode = "text-contains" // CSS范围内文本包含
)

// Strategy 一种定位元素的方式
type Strategy struct {
	Name     string `yaml:"name"`
	Mode     Mode   `yaml:"mode" validate:"oneof=css xpath text-exact text-contains"`
	Selector string `yaml:"selector" validate:"required"`
	Text     string `yaml:"text"`
}

// UnmarshalYAML 允许直接用字符串表示CSS策略
func (s *Strategy) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = Strategy{Name: value.Value, Mode: ModeCSS, Selector: value.Value}
		return nil
	}
	type plain Strategy
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = Strategy(p)
	if s.Mode == "" {
		s.Mode = ModeCSS
	}
	if s.Name == "" {
		s.Name = s.Selector
	}
	return nil
}

// Render 用text替换选择器和文本中的 {text} 占位符
func (s Strategy) Render(text string) Strategy {
	s.Selector = strings.ReplaceAll(s.Selector, "{text}", text)
	s.Text = strings.ReplaceAll(s.Text, "{text}", text)
	return s
}

// selector 查询使用的选择器
func (s Strategy) selector() browser.Selector {
	if s.Mode == ModeXPath {
		return browser.XPath(s.Selector)
	}
	return browser.CSS(s.Selector)
}

func (s Strategy) String() string {
	if s.Text != "" {
		return fmt.Sprintf("%s(%s %s %q)", s.Name, s.Mode, s.Selector, s.Text)
	}
	return fmt.Sprintf("%s(%s %s)", s.Name, s.Mode, s.Selector)
}

// RowSelectors 结果行选择器(CSS)
type RowSelectors struct {
	Primary   string `yaml:"primary" validate:"required"`
	Alternate string `yaml:"alternate"`
}

// FieldStrategies 结果行内各字段的定位策略
type FieldStrategies struct {
	Title   []Strategy `yaml:"title" validate:"min=1,dive"`
	Authors []Strategy `yaml:"authors" validate:"dive"`
	Source  []Strategy `yaml:"source" validate:"dive"`
	Year    []Strategy `yaml:"year" validate:"dive"`
}

// Table 一个版本的站点定位策略表
type Table struct {
	Version            string            `yaml:"version" validate:"required"`
	Description        string            `yaml:"description"`
	Categories         map[string]string `yaml:"categories" validate:"min=1"`
	CategoryStrategies []Strategy        `yaml:"category_strategies" validate:"min=1,dive"`
	TextScanKind       string            `yaml:"text_scan_kind"`
	SearchInput        []Strategy        `yaml:"search_input" validate:"min=1,dive"`
	SearchHints        []string          `yaml:"search_hints"`
	ResultRows         RowSelectors      `yaml:"result_rows"`
	Fields             FieldStrategies   `yaml:"fields"`
	PDFDownload        []Strategy        `yaml:"pdf_download" validate:"min=1,dive"`
	CAJDownload        []Strategy        `yaml:"caj_download" validate:"dive"`
	NextPage           []Strategy        `yaml:"next_page" validate:"dive"`
}

var tableValidator = validator.New()

// CategoryTarget 返回文献类型的定位目标
// 未注册的类型返回 CategoryNotFound
func (t *Table) CategoryTarget(category models.DocumentCategory) (Target, error) {
	label, ok := t.Categories[string(category)]
	if !ok || label == "" {
		return Target{}, models.NewError(models.KindCategoryNotFound, "选择文献类型",
			fmt.Errorf("策略表 %s 中没有文献类型: %s", t.Version, category))
	}

	strategies := make([]Strategy, 0, len(t.CategoryStrategies))
	for _, s := range t.CategoryStrategies {
		strategies = append(strategies, s.Render(label))
	}
	return Target{
		Description: "文献类型 " + label,
		Strategies:  strategies,
		Expected:    label,
		ScanKind:    t.TextScanKind,
	}, nil
}

// Validate 检查策略表是否完整
func (t *Table) Validate() error {
	if err := tableValidator.Struct(t); err != nil {
		return fmt.Errorf("策略表 %s 无效: %w", t.Version, err)
	}
	return nil
}

// Parse 解析YAML格式的策略表
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("解析策略表失败: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load 加载内置的策略表,version为空时使用默认版本
func Load(version string) (*Table, error) {
	if version == "" {
		version = DefaultVersion
	}
	data, err := tablesFS.ReadFile(path.Join("tables", version+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("未知的策略表版本 %s (可用: %s)", version, strings.Join(Versions(), ", "))
	}
	return Parse(data)
}

// LoadFile 从文件加载策略表,替换内置版本
func LoadFile(filePath string) (*Table, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取策略表文件失败: %w", err)
	}
	return Parse(data)
}

// Versions 内置策略表版本,按名称排序
func Versions() []string {
	entries, err := fs.ReadDir(tablesFS, "tables")
	if err != nil {
		return nil
	}
	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		versions = append(versions, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(versions)
	return versions
}
