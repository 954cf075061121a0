package oracle

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// CoerceDecisionJSON 从模型原始输出中提取决策 JSON 对象文本。
// 兼容三种形态：裸对象、{"decision": {...}} 包装、Markdown 代码块/夹杂说明文字。
func CoerceDecisionJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("json 内容为空")
	}
	candidate := raw
	if !gjson.Valid(candidate) {
		obj, ok := ExtractJSONObject(raw)
		if !ok {
			return "", fmt.Errorf("未找到 JSON 对象")
		}
		candidate = obj
	}
	if !gjson.Valid(candidate) {
		return "", fmt.Errorf("json 格式无效")
	}
	parsed := gjson.Parse(candidate)
	if !parsed.IsObject() {
		return "", fmt.Errorf("根节点必须是 JSON 对象")
	}
	if inner := parsed.Get("decision"); inner.Exists() && inner.IsObject() {
		return strings.TrimSpace(inner.Raw), nil
	}
	if strings.TrimSpace(parsed.Get("action").String()) == "" {
		return "", fmt.Errorf("对象未包含 action 字段")
	}
	return candidate, nil
}

// ExtractJSONObject 提取首个括号配平的 JSON 对象，返回对象文本与是否成功。
func ExtractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
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
				return strings.TrimSpace(s[start : i+1]), true
			}
		}
	}
	return "", false
}
