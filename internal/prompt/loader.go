package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

//go:embed assets/*
var embeddedFS embed.FS

const (
	templateFile = "template.md"
	startersFile = "starters.txt"
)

// Loader 加载提示词模板与示例池
// 优先读取覆盖目录中的同名文件，找不到时回退到内置资源
type Loader struct {
	overrideDir string
}

// NewLoader 创建 Loader，overrideDir 为空时只使用内置资源
func NewLoader(overrideDir string) *Loader {
	return &Loader{overrideDir: overrideDir}
}

// LoadOptions 加载模板所需的外部文档与参数
type LoadOptions struct {
	ReadmePath  string // 替换 %README%
	LifeDocPath string // 替换 %LIFE_DOC%
	K           int    // 每个任务注入的示例条数
}

// Load 组装完整的 Template
func (l *Loader) Load(opts LoadOptions) (*Template, error) {
	text, err := l.loadContent(templateFile)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	starters, err := l.loadContent(startersFile)
	if err != nil {
		return nil, fmt.Errorf("load starters: %w", err)
	}

	docs := make(map[string]string, 2)
	for name, path := range map[string]string{
		PlaceholderReadme:  opts.ReadmePath,
		PlaceholderLifeDoc: opts.LifeDocPath,
	} {
		content, err := readDocument(path)
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", name, err)
		}
		docs[name] = content
	}

	tpl := &Template{
		Text:      strings.TrimSpace(string(text)),
		Documents: docs,
		Pool:      ParseLines(string(starters)),
		K:         opts.K,
	}
	klog.V(6).Infof("模板加载完成: templateLen=%d, pool=%d, k=%d", len(tpl.Text), len(tpl.Pool), tpl.K)
	return tpl, nil
}

func (l *Loader) loadContent(name string) ([]byte, error) {
	if l.overrideDir != "" {
		fullPath := filepath.Join(l.overrideDir, name)
		if data, err := os.ReadFile(fullPath); err == nil {
			klog.V(6).Infof("使用覆盖模板文件: %s", fullPath)
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, "assets/"+name)
}

// readDocument 读取替换文档；路径为空时替换为空串
func readDocument(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ParseLines 按行拆分示例池，去掉首尾空白与空行
func ParseLines(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
