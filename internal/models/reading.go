package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReadingKind 条件读数的值形态
type ReadingKind string

const (
	ReadingNumber ReadingKind = "number"
	ReadingString ReadingKind = "string"
	ReadingList   ReadingKind = "list"
	ReadingBool   ReadingKind = "bool"
)

// ReadingValue 条件读数的带标签联合值（number/string/list/bool 四选一）
type ReadingValue struct {
	Kind   ReadingKind
	Number float64
	Str    string
	List   []string
	Bool   bool
}

// NumberValue 构造数值读数
func NumberValue(n float64) ReadingValue {
	return ReadingValue{Kind: ReadingNumber, Number: n}
}

// StringValue 构造字符串读数
func StringValue(s string) ReadingValue {
	return ReadingValue{Kind: ReadingString, Str: s}
}

// ListValue 构造字符串列表读数
func ListValue(items ...string) ReadingValue {
	return ReadingValue{Kind: ReadingList, List: items}
}

// BoolValue 构造布尔读数
func BoolValue(b bool) ReadingValue {
	return ReadingValue{Kind: ReadingBool, Bool: b}
}

// AsNumber 取数值（仅 number 形态有效）
func (v ReadingValue) AsNumber() (float64, bool) {
	if v.Kind == ReadingNumber {
		return v.Number, true
	}
	return 0, false
}

// Equals 同形态值相等比较，形态不同恒为 false
func (v ReadingValue) Equals(o ReadingValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ReadingNumber:
		return v.Number == o.Number
	case ReadingString:
		return v.Str == o.Str
	case ReadingBool:
		return v.Bool == o.Bool
	case ReadingList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != o.List[i] {
				return false
			}
		}
		return true
	}
	return false
}

// String 读数的文本形式（用于 contains 子串匹配和日志）
func (v ReadingValue) String() string {
	switch v.Kind {
	case ReadingNumber:
		return fmt.Sprintf("%g", v.Number)
	case ReadingString:
		return v.Str
	case ReadingBool:
		return fmt.Sprintf("%t", v.Bool)
	case ReadingList:
		return strings.Join(v.List, ",")
	}
	return ""
}

// MarshalJSON 按形态序列化为原生 JSON 值
func (v ReadingValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ReadingNumber:
		return json.Marshal(v.Number)
	case ReadingString:
		return json.Marshal(v.Str)
	case ReadingBool:
		return json.Marshal(v.Bool)
	case ReadingList:
		return json.Marshal(v.List)
	}
	return nil, fmt.Errorf("unknown reading kind %q", v.Kind)
}

// UnmarshalJSON 从原生 JSON 值推断形态
func (v *ReadingValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return ErrUnsupportedReading
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return ErrUnsupportedReading
		}
		*v = ListValue(items...)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return ErrUnsupportedReading
		}
		*v = NumberValue(n)
	}
	return nil
}

// ErrUnsupportedReading 读数值不属于支持的四种形态
var ErrUnsupportedReading = &DataFormatError{Message: "unsupported reading value"}

// DataFormatError 数据格式错误类型
type DataFormatError struct {
	Message string
}

func (e *DataFormatError) Error() string {
	return e.Message
}

// ConditionReading 条件读数快照（按条件类型索引，缺失键为正常情况）
type ConditionReading map[ConditionType]ReadingValue

// Get 取某条件类型的读数
func (r ConditionReading) Get(t ConditionType) (ReadingValue, bool) {
	v, ok := r[t]
	return v, ok
}

// ParseConditionReading 解析上游采集器发布的读数快照 JSON。
// 未知条件类型的键被丢弃；值形态与类型的匹配在求值时检查。
func ParseConditionReading(data []byte) (ConditionReading, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse condition reading: %w", err)
	}
	reading := make(ConditionReading, len(raw))
	for key, rawVal := range raw {
		ct := ConditionType(key)
		if !ct.Valid() {
			continue
		}
		var v ReadingValue
		if err := v.UnmarshalJSON(rawVal); err != nil {
			// 单个坏值不拖垮整个快照
			continue
		}
		reading[ct] = v
	}
	return reading, nil
}
