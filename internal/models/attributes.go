package models

import (
	"math"
	"strings"
)

// 常用属性键
const (
	AttrHealth   = "health"
	AttrPhysique = "physique"
	AttrPleasure = "pleasure"
	AttrActive   = "active"
	AttrCP       = "cp"
	AttrTime     = "time"
	AttrWeather  = "weather"
)

const (
	attrMin = -1
	attrMax = 100
)

// attributeAliases 中英双语别名表，两个名字指向同一属性
var attributeAliases = map[string]string{
	AttrHealth:   "健康",
	AttrPhysique: "体能",
	AttrPleasure: "快感",
	AttrActive:   "活跃",
	AttrCP:       "创造点",
	AttrTime:     "时间",
	AttrWeather:  "天气",
	"健康":         AttrHealth,
	"体能":         AttrPhysique,
	"快感":         AttrPleasure,
	"活跃":         AttrActive,
	"创造点":        AttrCP,
	"时间":         AttrTime,
	"天气":         AttrWeather,
}

// CanonicalAttribute 返回属性的英文规范名，未知名字原样返回
func CanonicalAttribute(name string) string {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	if _, ok := attributeAliases[lower]; ok && isASCII(lower) {
		return lower
	}
	if alias, ok := attributeAliases[name]; ok && !isASCII(name) {
		return alias
	}
	return name
}

// IsCurrency 判断是否为货币类属性（创造点）
func IsCurrency(name string) bool {
	return CanonicalAttribute(name) == AttrCP
}

// IsHealth 判断是否为健康属性
func IsHealth(name string) bool {
	return CanonicalAttribute(name) == AttrHealth
}

// ClampAttribute 按属性规则裁剪数值
func ClampAttribute(name string, v float64) float64 {
	if v < attrMin {
		return attrMin
	}
	if IsCurrency(name) {
		return v
	}
	return math.Min(v, attrMax)
}

// ResolveAttributeKey 依次按精确键、别名键、忽略大小写匹配查找属性键
func ResolveAttributeKey(attrs map[string]Attribute, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if _, ok := attrs[name]; ok {
		return name, true
	}
	if alias, ok := attributeAliases[name]; ok {
		if _, ok := attrs[alias]; ok {
			return alias, true
		}
	}
	canonical := CanonicalAttribute(name)
	for key, attr := range attrs {
		if strings.EqualFold(key, name) || strings.EqualFold(attr.Name, name) {
			return key, true
		}
		if CanonicalAttribute(key) == canonical || CanonicalAttribute(attr.Name) == canonical {
			return key, true
		}
	}
	return "", false
}

// GetNumber 读取数值属性，不存在时返回0
func GetNumber(attrs map[string]Attribute, name string) float64 {
	key, ok := ResolveAttributeKey(attrs, name)
	if !ok {
		return 0
	}
	return attrs[key].Value
}

// HasAttribute 属性是否存在
func HasAttribute(attrs map[string]Attribute, name string) bool {
	_, ok := ResolveAttributeKey(attrs, name)
	return ok
}

// SetNumber 写入数值属性（裁剪），属性不存在时创建
func SetNumber(attrs map[string]Attribute, name string, v float64) float64 {
	key, ok := ResolveAttributeKey(attrs, name)
	if !ok {
		key = CanonicalAttribute(name)
		attrs[key] = Attribute{
			ID:         key,
			Name:       displayName(key),
			Type:       AttrNumber,
			Visibility: VisibilityPublic,
		}
	}
	attr := attrs[key]
	attr.Value = ClampAttribute(key, v)
	attrs[key] = attr
	return attr.Value
}

// AddNumber 增减数值属性，返回变化前后的值
func AddNumber(attrs map[string]Attribute, name string, delta float64) (before, after float64) {
	before = GetNumber(attrs, name)
	after = SetNumber(attrs, name, before+delta)
	return before, after
}

// SetText 写入文本属性
func SetText(attrs map[string]Attribute, name, text string) {
	key, ok := ResolveAttributeKey(attrs, name)
	if !ok {
		key = CanonicalAttribute(name)
		attrs[key] = Attribute{ID: key, Name: displayName(key), Type: AttrText, Visibility: VisibilityPublic}
	}
	attr := attrs[key]
	attr.Text = text
	attrs[key] = attr
}

// GetText 读取文本属性
func GetText(attrs map[string]Attribute, name string) string {
	key, ok := ResolveAttributeKey(attrs, name)
	if !ok {
		return ""
	}
	return attrs[key].Text
}

// DefaultActorAttributes 新角色的默认属性
func DefaultActorAttributes() map[string]Attribute {
	attrs := make(map[string]Attribute)
	SetNumber(attrs, AttrHealth, 100)
	SetNumber(attrs, AttrPhysique, 100)
	SetNumber(attrs, AttrPleasure, 50)
	SetNumber(attrs, AttrActive, 10)
	SetNumber(attrs, AttrCP, 0)
	return attrs
}

func displayName(key string) string {
	if alias, ok := attributeAliases[key]; ok && isASCII(key) {
		return alias
	}
	return key
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
