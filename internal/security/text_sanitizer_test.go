package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeText(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"プレーンテキスト", "alice", "alice"},
		{"タグ除去", "<b>alice</b>", "alice"},
		{"scriptは内容ごと除去", "<script>alert(1)</script>bob", "bob"},
		{"イベント属性付きタグ", `<img src=x onerror="alert(1)">carol`, "carol"},
		{"エンティティは元に戻す", "Tom & Jerry", "Tom & Jerry"},
		{"前後の空白", "  dave  ", "dave"},
		{"制御文字", "ev\te\n", "eve"},
		{"日本語", "<i>山田</i>太郎", "山田太郎"},
		{"空文字列", "", ""},
		{"タグのみ", "<br/>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeText(tt.in); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeText_TruncatesLongInput(t *testing.T) {
	s := NewTextSanitizer()

	got := s.SanitizeText(strings.Repeat("あ", MaxUsernameLength+10))
	if n := utf8.RuneCountInString(got); n != MaxUsernameLength {
		t.Errorf("rune count = %d, want %d", n, MaxUsernameLength)
	}
}

func TestSanitizeText_Idempotent(t *testing.T) {
	s := NewTextSanitizer()

	once := s.SanitizeText("<em>frank</em> & co")
	twice := s.SanitizeText(once)
	if once != twice {
		t.Errorf("not idempotent: %q -> %q", once, twice)
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}
