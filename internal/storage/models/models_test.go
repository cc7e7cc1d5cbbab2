package models

import (
	"testing"

	"resume-extractor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractionRecordRoundTrip(t *testing.T) {
	rec := types.CandidateRecord{
		Name:            "张三",
		SelfAssessment:  "踏实肯干",
		Companies:       []types.Entry{{Name: "字节跳动", Duration: "2020.07-2023.03"}},
		GraduateSchools: []types.Entry{{Name: "浙江大学", Duration: "2016-2020"}},
	}

	row, err := NewExtractionRecord("rid", "bid", "a.pdf", "openai", "gpt-4o", "md5", rec)
	require.NoError(t, err)
	assert.Equal(t, "张三", row.CandidateName)
	assert.JSONEq(t, `[{"name":"字节跳动","duration":"2020.07-2023.03"}]`, string(row.CompaniesJSON))
	assert.Equal(t, "extraction_records", row.TableName())

	assert.Equal(t, rec, row.ToCandidate())
}

func TestExtractionRecordEmptyArrays(t *testing.T) {
	row, err := NewExtractionRecord("rid", "bid", "", "claude", "m", "", types.CandidateRecord{Name: "李四"})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(row.CompaniesJSON))
	assert.Equal(t, "[]", string(row.GraduateSchools))

	// 损坏的 JSON 字段不应导致 panic
	row.CompaniesJSON = []byte("{bad")
	got := row.ToCandidate()
	assert.Empty(t, got.Companies)
	assert.NotNil(t, got.Companies)
}
