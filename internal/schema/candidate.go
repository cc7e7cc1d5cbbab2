// Package schema 定义候选人信息的唯一规范 schema，各模型适配器只负责把它翻译成厂商格式。
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"resume-extractor/internal/types"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidOutput 模型输出不符合规范 schema
var ErrInvalidOutput = errors.New("模型输出不符合候选人schema")

// 规范 schema 的类型名，与 JSON Schema 保持一致
const (
	TypeObject = "object"
	TypeArray  = "array"
	TypeString = "string"
)

// Property 规范 schema 的节点
type Property struct {
	Type        string
	Description string
	Properties  map[string]*Property
	Order       []string // 属性顺序，翻译成厂商格式时保持稳定
	Items       *Property
	Required    []string
}

func entry(kind string) *Property {
	return &Property{
		Type:        TypeObject,
		Description: kind,
		Properties: map[string]*Property{
			"name":     {Type: TypeString, Description: "Name of the " + kind},
			"duration": {Type: TypeString, Description: "Duration at the " + kind},
		},
		Order:    []string{"name", "duration"},
		Required: []string{"name", "duration"},
	}
}

// Candidate 候选人信息的规范 schema
var Candidate = &Property{
	Type:        TypeObject,
	Description: "Resume information about a candidate.",
	Properties: map[string]*Property{
		"name":           {Type: TypeString, Description: "Name of the candidate"},
		"selfAssessment": {Type: TypeString, Description: "Self-assessment of the candidate"},
		"companies": {
			Type:        TypeArray,
			Description: "Companies the candidate worked for, excluding project experience",
			Items:       entry("company"),
		},
		"graduateSchools": {
			Type:        TypeArray,
			Description: "Schools the candidate graduated from",
			Items:       entry("school"),
		},
	},
	Order:    []string{"name", "selfAssessment", "companies", "graduateSchools"},
	Required: []string{"name", "selfAssessment", "companies", "graduateSchools"},
}

// ToMap 转换为 JSON Schema (draft-07) 的 map 表示。strict 为 true 时为每个对象加上 additionalProperties=false
func (p *Property) ToMap(strict bool) map[string]interface{} {
	m := map[string]interface{}{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Properties) > 0 {
		props := make(map[string]interface{}, len(p.Properties))
		for name, child := range p.Properties {
			props[name] = child.ToMap(strict)
		}
		m["properties"] = props
	}
	if p.Items != nil {
		m["items"] = p.Items.ToMap(strict)
	}
	if len(p.Required) > 0 {
		required := make([]interface{}, len(p.Required))
		for i, r := range p.Required {
			required[i] = r
		}
		m["required"] = required
	}
	if strict && p.Type == TypeObject {
		m["additionalProperties"] = false
	}
	return m
}

// OpenAIResponseFormat OpenAI structured outputs 的 response_format
func OpenAIResponseFormat() map[string]interface{} {
	return map[string]interface{}{
		"type": "json_schema",
		"json_schema": map[string]interface{}{
			"name":   "candidate",
			"strict": true,
			"schema": Candidate.ToMap(true),
		},
	}
}

// ExampleJSON 用于提示词工程的示例输出
const ExampleJSON = `{
    "name": "John Doe",
    "selfAssessment": "Highly motivated software engineer with 5 years of experience in full-stack development.",
    "companies": [
        {"name": "TechCorp", "duration": "2018-2021"},
        {"name": "Innovate Solutions", "duration": "2021-Present"}
    ],
    "graduateSchools": [
        {"name": "MIT", "duration": "2014-2018"},
        {"name": "Stanford University", "duration": "2018-2020"}
    ]
}`

// FieldError 单个字段的校验错误
type FieldError struct {
	Field   string
	Message string
}

// ValidationError schema 校验错误
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	parts := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return "schema校验失败: " + strings.Join(parts, "; ")
}

var (
	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(Candidate.ToMap(false)))
	})
	return compiled, compileErr
}

// Validate 校验原始 JSON 输出
func Validate(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ValidationError{Errors: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	return ValidateDocument(doc)
}

// ValidateDocument 校验一个已解码的 JSON 文档
func ValidateDocument(doc interface{}) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("编译候选人schema失败: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("执行schema校验失败: %w", err)
	}
	if result.Valid() {
		return nil
	}
	ve := &ValidationError{}
	for _, re := range result.Errors() {
		ve.Errors = append(ve.Errors, FieldError{Field: re.Field(), Message: re.Description()})
	}
	return ve
}

// DecodeCandidate 把模型返回的 JSON 解码为 CandidateRecord。
// 缺失的 selfAssessment / 数组字段按空值补齐，companyExperiences 视为 companies；
// 类型错误或缺少 name 返回 ErrInvalidOutput。
func DecodeCandidate(data []byte) (*types.CandidateRecord, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: 无法解析JSON: %v", ErrInvalidOutput, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: 输出为空", ErrInvalidOutput)
	}
	normalize(doc)

	if err := ValidateDocument(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	var rec types.CandidateRecord
	if err := json.Unmarshal(normalized, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return &rec, nil
}

func normalize(doc map[string]interface{}) {
	if _, ok := doc["companies"]; !ok {
		if alias, ok := doc["companyExperiences"]; ok {
			doc["companies"] = alias
		}
	}
	delete(doc, "companyExperiences")

	if v, ok := doc["selfAssessment"]; !ok || v == nil {
		doc["selfAssessment"] = ""
	}
	for _, key := range []string{"companies", "graduateSchools"} {
		v, ok := doc[key]
		if !ok || v == nil {
			doc[key] = []interface{}{}
			continue
		}
		items, ok := v.([]interface{})
		if !ok {
			continue
		}
		for _, item := range items {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			for _, field := range []string{"name", "duration"} {
				if fv, ok := obj[field]; !ok || fv == nil {
					obj[field] = ""
				}
			}
		}
	}
}
