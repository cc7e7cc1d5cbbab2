package schema

import "google.golang.org/genai"

// ClaudeToolName Claude 强制工具调用使用的工具名
const ClaudeToolName = "extract_candidate_resume_info"

// ClaudeInputSchema 返回 Claude 工具 input_schema 的 properties 与 required
func ClaudeInputSchema() (map[string]interface{}, []string) {
	m := Candidate.ToMap(false)
	props, _ := m["properties"].(map[string]interface{})
	required := make([]string, len(Candidate.Required))
	copy(required, Candidate.Required)
	return props, required
}

var genaiTypes = map[string]genai.Type{
	TypeObject: genai.TypeObject,
	TypeArray:  genai.TypeArray,
	TypeString: genai.TypeString,
}

// GeminiSchema 把规范 schema 翻译为 genai 的 ResponseSchema
func GeminiSchema() *genai.Schema {
	return toGenai(Candidate)
}

func toGenai(p *Property) *genai.Schema {
	s := &genai.Schema{
		Type:        genaiTypes[p.Type],
		Description: p.Description,
	}
	if len(p.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, child := range p.Properties {
			s.Properties[name] = toGenai(child)
		}
		s.PropertyOrdering = append([]string(nil), p.Order...)
	}
	if p.Items != nil {
		s.Items = toGenai(p.Items)
	}
	if len(p.Required) > 0 {
		s.Required = append([]string(nil), p.Required...)
	}
	return s
}
