package config

import "strings"

// Language 受支持的 OCR 语言
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// 单语言目录,顺序即展示顺序
var supportedLanguages = []Language{
	{Code: "eng", Name: "English"},
	{Code: "tam", Name: "Tamil"},
	{Code: "kan", Name: "Kannada"},
	{Code: "hin", Name: "Hindi"},
	{Code: "tel", Name: "Telugu"},
	{Code: "mal", Name: "Malayalam"},
}

// 常用的英文混合组合
var combinedLanguages = []Language{
	{Code: "eng+tam", Name: "English + Tamil"},
	{Code: "eng+hin", Name: "English + Hindi"},
	{Code: "eng+tel", Name: "English + Telugu"},
	{Code: "eng+kan", Name: "English + Kannada"},
	{Code: "eng+mal", Name: "English + Malayalam"},
}

// SupportedLanguages 返回单语言目录的副本
func SupportedLanguages() []Language {
	out := make([]Language, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

// CombinedLanguages 返回混合语言目录的副本
func CombinedLanguages() []Language {
	out := make([]Language, len(combinedLanguages))
	copy(out, combinedLanguages)
	return out
}

// IsLanguageSupported 校验语言码,组合码按 + 拆分逐段校验
func IsLanguageSupported(code string) bool {
	if code == "" {
		return false
	}
	for _, part := range strings.Split(code, "+") {
		found := false
		for _, l := range supportedLanguages {
			if l.Code == part {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
