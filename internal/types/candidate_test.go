package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelSelector(t *testing.T) {
	sel, err := ParseModelSelector("openai:gpt-4o-mini-2024-07-18")
	require.NoError(t, err)
	assert.Equal(t, "openai", sel.Provider)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", sel.ModelName)
	assert.Equal(t, "openai:gpt-4o-mini-2024-07-18", sel.String())

	// 只在第一个冒号处拆分
	sel, err = ParseModelSelector("deepseek:ft:deepseek-chat:v2")
	require.NoError(t, err)
	assert.Equal(t, "deepseek", sel.Provider)
	assert.Equal(t, "ft:deepseek-chat:v2", sel.ModelName)

	for _, bad := range []string{"", "openai", ":gpt-4o"} {
		_, err := ParseModelSelector(bad)
		assert.ErrorIs(t, err, ErrInvalidModelKey, "键 %q 应当被拒绝", bad)
	}
}

func TestCandidateRecordUnmarshal(t *testing.T) {
	var rec CandidateRecord
	err := json.Unmarshal([]byte(`{"name":"张三","selfAssessment":"","companyExperiences":[{"name":"TechCorp","duration":"2018-2021"}],"graduateSchools":null}`), &rec)
	require.NoError(t, err)

	assert.Equal(t, "张三", rec.Name)
	assert.Equal(t, []Entry{{Name: "TechCorp", Duration: "2018-2021"}}, rec.Companies)
	assert.NotNil(t, rec.GraduateSchools)
	assert.Empty(t, rec.GraduateSchools)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"张三","selfAssessment":"","companies":[{"name":"TechCorp","duration":"2018-2021"}],"graduateSchools":[]}`, string(out))
}

func TestCandidateRecordPrefersCompanies(t *testing.T) {
	var rec CandidateRecord
	err := json.Unmarshal([]byte(`{"name":"李四","companies":[{"name":"A","duration":"1"}],"companyExperiences":[{"name":"B","duration":"2"}]}`), &rec)
	require.NoError(t, err)
	assert.Equal(t, "A", rec.Companies[0].Name)
}
