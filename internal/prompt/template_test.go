package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Literal(t *testing.T) {
	out, err := Render("A %README% B %LIFE_DOC% C %README%", map[string]string{
		"README":   "r",
		"LIFE_DOC": "l",
	})
	require.NoError(t, err)
	assert.Equal(t, "A r B l C r", out)
}

// 替换进来的内容不会被再次展开
func TestRender_NoRecursiveExpansion(t *testing.T) {
	out, err := Render("[%README%]", map[string]string{
		"README":   "%LIFE_DOC%",
		"LIFE_DOC": "should not appear",
	})
	require.NoError(t, err)
	assert.Equal(t, "[%LIFE_DOC%]", out)
}

func TestRender_MissingPlaceholder(t *testing.T) {
	_, err := Render("%README% and %USER_FIRST_PROMPTS%", map[string]string{"README": "x"})
	require.Error(t, err)

	var missing *MissingPlaceholderError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"USER_FIRST_PROMPTS"}, missing.Names)
}

// 普通百分号文本不视为占位符
func TestRender_IgnoresPlainPercent(t *testing.T) {
	out, err := Render("50% done, 100% sure", nil)
	require.NoError(t, err)
	assert.Equal(t, "50% done, 100% sure", out)
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("%B% %A% %B% %lower% 10%")
	assert.Equal(t, []string{"A", "B"}, got)
}

func newTestTemplate() *Template {
	return &Template{
		Text:      "doc=%README%\nlife=%LIFE_DOC%\nstarters:\n%USER_FIRST_PROMPTS%",
		Documents: map[string]string{"README": "readme", "LIFE_DOC": "life"},
		Pool:      testPool,
		K:         5,
	}
}

func TestTemplate_ForTaskDeterministic(t *testing.T) {
	tpl := newTestTemplate()
	require.NoError(t, tpl.Check())

	a, err := tpl.ForTask(11)
	require.NoError(t, err)
	b, err := tpl.ForTask(11)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, strings.Join(Sample(11, testPool, 5), "\n"))
	assert.NotContains(t, a, "%")
}

func TestTemplate_Preview(t *testing.T) {
	tpl := newTestTemplate()
	out, err := tpl.Preview()
	require.NoError(t, err)
	assert.Contains(t, out, strings.Join(testPool[:5], "\n"))
}

func TestTemplate_CheckFailures(t *testing.T) {
	tpl := newTestTemplate()
	tpl.Pool = nil
	assert.Error(t, tpl.Check())

	tpl = newTestTemplate()
	tpl.K = 0
	assert.Error(t, tpl.Check())

	tpl = newTestTemplate()
	delete(tpl.Documents, "LIFE_DOC")
	var missing *MissingPlaceholderError
	assert.True(t, errors.As(tpl.Check(), &missing))
}

func TestLoader_EmbeddedDefaults(t *testing.T) {
	tpl, err := NewLoader("").Load(LoadOptions{K: 5})
	require.NoError(t, err)
	require.NoError(t, tpl.Check())
	assert.NotEmpty(t, tpl.Pool)

	for _, name := range []string{PlaceholderReadme, PlaceholderLifeDoc, PlaceholderExemplars} {
		assert.Contains(t, Placeholders(tpl.Text), name)
	}
}

func TestLoader_OverrideAndDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template.md"), []byte("R=%README% S=%USER_FIRST_PROMPTS%"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "starters.txt"), []byte("one\n\n  two  \n"), 0644))
	readme := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("  project readme \n"), 0644))

	tpl, err := NewLoader(dir).Load(LoadOptions{ReadmePath: readme, K: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, tpl.Pool)
	assert.Equal(t, "project readme", tpl.Documents[PlaceholderReadme])

	out, err := tpl.ForTask(0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "R=project readme S="))
}

func TestLoader_MissingDocument(t *testing.T) {
	_, err := NewLoader("").Load(LoadOptions{ReadmePath: filepath.Join(t.TempDir(), "nope.md"), K: 5})
	assert.Error(t, err)
}
