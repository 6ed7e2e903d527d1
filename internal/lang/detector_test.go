package lang

import "testing"

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		target string
		skip   bool
	}{
		{"empty", "", "zh", true},
		{"whitespace only", "  \n\t ", "zh", true},
		{"punctuation and digits", "12.5 (%) --- 42", "zh", true},
		{"already chinese", "已经是中文的文本", "zh", true},
		{"english to chinese", "This is an English sentence.", "zh", false},
		{"mixed mostly chinese", "中文中文中文中文 ok", "zh", true},
		{"mixed mostly english", "only 中 one chinese char here", "zh", false},
		{"already english", "plain english text", "en", true},
		{"chinese only to english", "中文文本", "en", true},
		{"mostly chinese with latin run to english", "中文中文中文 abc", "en", false},
		{"russian to chinese", "Это русский текст", "zh", false},
		{"japanese kana to ja", "これはテストです", "ja", true},
		{"isolated latin letters", "a b c", "zh", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ShouldSkip(tt.text, tt.target)
			if got != tt.skip {
				t.Errorf("ShouldSkip(%q, %q) = %v (%s), want %v", tt.text, tt.target, got, reason, tt.skip)
			}
		})
	}
}

func TestShouldSkipReasons(t *testing.T) {
	if skip, reason := ShouldSkip("", "zh"); !skip || reason != "empty text" {
		t.Errorf("empty text reason = %q", reason)
	}
	if skip, reason := ShouldSkip("中文文本", "zh"); !skip || reason == "" {
		t.Errorf("chinese skip reason = %q, skip = %v", reason, skip)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"zh", "简体中文"},
		{"ZH", "简体中文"},
		{"en", "English"},
		{"ja", "日本語"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.code); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
	// unknown but parseable codes fall back to the canonical tag
	if got := DisplayName("pt-BR"); got == "" {
		t.Error("DisplayName(pt-BR) returned empty string")
	}
}
