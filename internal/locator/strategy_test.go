package locator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

func TestEmbeddedTables(t *testing.T) {
	versions := Versions()
	assert.Equal(t, []string{"cnki-2023.06", "cnki-2024.10"}, versions)

	for _, v := range versions {
		t.Run(v, func(t *testing.T) {
			table, err := Load(v)
			require.NoError(t, err)
			assert.Equal(t, v, table.Version)
			for _, c := range models.AllCategories {
				_, err := table.CategoryTarget(c)
				assert.NoError(t, err, "文献类型 %s 缺少策略", c)
			}
		})
	}
}

func TestLoadDefaultAndUnknown(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, table.Version)

	_, err = Load("cnki-1999.01")
	assert.Error(t, err)
}

func TestCategoryTarget(t *testing.T) {
	table, err := Load(DefaultVersion)
	require.NoError(t, err)

	target, err := table.CategoryTarget(models.CategoryDissertation)
	require.NoError(t, err)
	assert.Equal(t, "学位论文", target.Expected)
	assert.Equal(t, "a", target.ScanKind)
	require.Len(t, target.Strategies, 4)
	assert.Equal(t, "学位论文", target.Strategies[0].Text)
	assert.Equal(t, "//a[contains(text(), '学位论文')]", target.Strategies[2].Selector)

	delete(table.Categories, string(models.CategoryPatent))
	_, err = table.CategoryTarget(models.CategoryPatent)
	assert.Equal(t, models.KindCategoryNotFound, models.KindOf(err))
}

func TestParseScalarStrategies(t *testing.T) {
	data := []byte(`
version: custom
categories: {学术期刊: 期刊}
category_strategies:
  - { mode: text-exact, selector: a, text: "{text}" }
search_input: ["input.search"]
result_rows: { primary: "tr.item" }
fields:
  title: ["a.title"]
pdf_download:
  - { name: PDF, mode: text-contains, selector: a, text: PDF下载 }
`)
	table, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Strategy{Name: "input.search", Mode: ModeCSS, Selector: "input.search"}, table.SearchInput[0])
	assert.Equal(t, "a", table.CategoryStrategies[0].Name)

	path := filepath.Join(t.TempDir(), "table.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	fromFile, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", fromFile.Version)
}

func TestParseRejectsIncompleteTable(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"缺少版本", `categories: {a: b}`},
		{"非法模式", `
version: bad
categories: {学术期刊: 期刊}
category_strategies: [{ mode: regex, selector: a }]
search_input: ["input"]
result_rows: { primary: tr }
fields: { title: [a] }
pdf_download: [a]
`},
		{"YAML语法错误", `version: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}
