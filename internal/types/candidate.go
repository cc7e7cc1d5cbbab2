package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidModelKey 模型选择键格式不正确
var ErrInvalidModelKey = errors.New("模型选择键格式无效，应为 provider:modelName")

// Entry 表示一段公司经历或教育经历
type Entry struct {
	Name     string `json:"name"`
	Duration string `json:"duration"`
}

// CandidateRecord 统一的候选人结构化信息，由各个模型适配器生成
type CandidateRecord struct {
	Name            string  `json:"name"`
	SelfAssessment  string  `json:"selfAssessment"`
	Companies       []Entry `json:"companies"`
	GraduateSchools []Entry `json:"graduateSchools"`
}

// UnmarshalJSON 兼容部分模型返回的 companyExperiences 字段，并把 null 数组归一为空切片
func (c *CandidateRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name               string  `json:"name"`
		SelfAssessment     string  `json:"selfAssessment"`
		Companies          []Entry `json:"companies"`
		CompanyExperiences []Entry `json:"companyExperiences"`
		GraduateSchools    []Entry `json:"graduateSchools"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Name = raw.Name
	c.SelfAssessment = raw.SelfAssessment
	c.Companies = raw.Companies
	if c.Companies == nil && raw.CompanyExperiences != nil {
		c.Companies = raw.CompanyExperiences
	}
	c.GraduateSchools = raw.GraduateSchools
	c.Normalize()
	return nil
}

// Normalize 保证数组字段非nil，序列化时输出 [] 而不是 null
func (c *CandidateRecord) Normalize() {
	if c.Companies == nil {
		c.Companies = []Entry{}
	}
	if c.GraduateSchools == nil {
		c.GraduateSchools = []Entry{}
	}
}

// ModelSelector "<provider>:<modelName>" 形式的模型选择键
type ModelSelector struct {
	Provider  string
	ModelName string
}

// ParseModelSelector 在第一个冒号处拆分模型选择键，modelName 原样透传
func ParseModelSelector(key string) (ModelSelector, error) {
	provider, modelName, found := strings.Cut(strings.TrimSpace(key), ":")
	if !found || provider == "" {
		return ModelSelector{}, fmt.Errorf("%w: %q", ErrInvalidModelKey, key)
	}
	return ModelSelector{Provider: provider, ModelName: modelName}, nil
}

// String 还原为 provider:modelName
func (m ModelSelector) String() string {
	return m.Provider + ":" + m.ModelName
}
