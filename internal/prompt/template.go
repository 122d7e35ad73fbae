package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// 模板占位符名称（不含两侧的 %）
const (
	PlaceholderReadme    = "README"
	PlaceholderLifeDoc   = "LIFE_DOC"
	PlaceholderExemplars = "USER_FIRST_PROMPTS"
)

var placeholderPattern = regexp.MustCompile(`%([A-Z][A-Z0-9_]*)%`)

// MissingPlaceholderError 模板引用了未提供的占位符
type MissingPlaceholderError struct {
	Names []string
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("template placeholders without substitution: %s", strings.Join(e.Names, ", "))
}

// Placeholders 返回模板中出现的占位符名称（去重、排序）
func Placeholders(template string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		seen[m[1]] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render 将模板中的 %NAME% 按 subs 做字面替换
// 只扫描一遍，替换进来的文本不会被再次展开
// 模板引用但 subs 中缺失的占位符会返回 *MissingPlaceholderError
func Render(template string, subs map[string]string) (string, error) {
	var missing []string
	for _, name := range Placeholders(template) {
		if _, ok := subs[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", &MissingPlaceholderError{Names: missing}
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		return subs[token[1:len(token)-1]]
	}), nil
}

// Template 生成请求所用的完整模板：正文、静态文档替换以及示例池
type Template struct {
	Text      string
	Documents map[string]string
	Pool      []string
	K         int
}

// substitutions 组装一次渲染所需的全部替换项
func (t *Template) substitutions(exemplars []string) map[string]string {
	subs := make(map[string]string, len(t.Documents)+1)
	for k, v := range t.Documents {
		subs[k] = v
	}
	subs[PlaceholderExemplars] = strings.Join(exemplars, "\n")
	return subs
}

// Check 在分发任务前校验模板的前置条件
func (t *Template) Check() error {
	if len(t.Pool) == 0 {
		return fmt.Errorf("exemplar pool is empty")
	}
	if t.K <= 0 {
		return fmt.Errorf("exemplar count must be positive, got %d", t.K)
	}
	_, err := Render(t.Text, t.substitutions(nil))
	return err
}

// ForTask 渲染第 idx 个任务的提示词，示例行由 Sample(idx) 决定
func (t *Template) ForTask(idx int) (string, error) {
	return Render(t.Text, t.substitutions(Sample(idx, t.Pool, t.K)))
}

// Preview 用示例池前 K 条渲染一份提示词，仅供 dry-run 查看
func (t *Template) Preview() (string, error) {
	k := t.K
	if k > len(t.Pool) {
		k = len(t.Pool)
	}
	if k < 0 {
		k = 0
	}
	return Render(t.Text, t.substitutions(t.Pool[:k]))
}
