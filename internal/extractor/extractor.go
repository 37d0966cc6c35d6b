package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"legalmind/internal/logger"
	"legalmind/internal/templates"
)

// JSONGenerator is the slice of the LLM provider the extractor needs.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Result maps canonical names and their template variable names to values.
// A key is present only when its value is known.
type Result map[string]string

// Canonical returns only the canonical-name entries of r for schema.
func (r Result) Canonical(schema *templates.Schema) map[string]string {
	out := make(map[string]string)
	for _, f := range schema.Fields {
		if v, ok := r[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out
}

type Extractor struct {
	llm     JSONGenerator
	timeout time.Duration
}

// New returns an extractor. llm may be nil, in which case only the regex
// patterns run.
func New(llm JSONGenerator) *Extractor {
	return &Extractor{llm: llm, timeout: 30 * time.Second}
}

// Extract fills schema parameters from text. It never fails: LLM errors and
// malformed responses degrade to the regex-only result.
func (e *Extractor) Extract(ctx context.Context, text string, schema *templates.Schema) Result {
	result := Result{}
	if schema == nil {
		return result
	}
	log := logger.WithContext(ctx).WithField("document_type", schema.Type)

	for k, v := range ExtractPatterns(text, schema) {
		result[k] = v
	}

	missing := schema.Missing(result)
	if len(missing) > 0 && e.llm != nil && strings.TrimSpace(text) != "" {
		fromLLM, err := e.askLLM(ctx, text, schema, missing)
		if err != nil {
			log.WithError(err).Warn("LLM parameter extraction failed, using pattern results")
		}
		for k, v := range fromLLM {
			result[k] = v
		}
	}

	for _, f := range schema.Fields {
		if v, ok := result[f.Name]; ok {
			result[f.Variable] = v
		}
	}

	log.WithField("keys", len(result)).Debug("Parameters extracted")
	return result
}

func (e *Extractor) askLLM(ctx context.Context, text string, schema *templates.Schema, missing []string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.llm.GenerateJSON(ctx, buildPrompt(schema, missing), text)
	if err != nil {
		return nil, err
	}
	return ParseLLMValues(raw, schema)
}

func buildPrompt(schema *templates.Schema, missing []string) string {
	var b strings.Builder
	b.WriteString("역할: 한국어 법률 문서 작성을 위한 정보 추출기.\n")
	fmt.Fprintf(&b, "문서 종류: %s\n", schema.Name)
	b.WriteString("사용자 메시지에서 아래 항목의 값을 찾아라.\n")
	for _, name := range missing {
		if f, ok := schema.Field(name); ok && f.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", name, f.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}
	b.WriteString(`규칙:
- 출력은 JSON 객체 하나만. 코드블록이나 설명 금지.
- 키는 위 항목 이름을 그대로 사용한다. 예: {"항목": "값"}
- 메시지에서 확실히 알 수 있는 값만 넣고, 불확실하거나 언급되지 않은 항목은 키 자체를 생략한다.
- 금액은 "N만원" 형식으로 쓴다.`)
	return b.String()
}

// ParseLLMValues reads the first JSON object in raw and keeps values for
// fields of schema. Labels may be canonical names, variables or aliases.
// Empty and placeholder values are dropped.
func ParseLLMValues(raw string, schema *templates.Schema) (map[string]string, error) {
	js := FirstJSONObject(raw)
	if js == "" {
		return nil, fmt.Errorf("no JSON object in LLM response")
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(js), &decoded); err != nil {
		return nil, fmt.Errorf("invalid JSON in LLM response: %w", err)
	}

	out := make(map[string]string)
	for label, value := range decoded {
		f, ok := schema.Resolve(label)
		if !ok {
			continue
		}
		v := stringify(value)
		if isUnknown(v) {
			continue
		}
		if nv := normalizeValue(f, v); nv != "" {
			out[f.Name] = nv
		}
	}
	return out, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

var unknownValues = map[string]bool{
	"<unknown>": true, "unknown": true, "null": true, "none": true, "n/a": true,
	"알 수 없음": true, "알수없음": true, "모름": true, "미상": true, "미정": true,
}

func isUnknown(v string) bool {
	return v == "" || unknownValues[strings.ToLower(v)]
}

// FirstJSONObject returns the text between the first '{' and the matching
// closing brace, ignoring braces inside strings.
func FirstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
