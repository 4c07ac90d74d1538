package dictionary

import (
	"regexp"
	"testing"

	"github.com/rs/zerolog"
)

func TestCorrection_Apply(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		input string
		want  string
	}{
		{"simple", Entry{"국민의뢰", "국민의례"}, "국민의뢰가 있겠습니다", "국민의례가 있겠습니다"},
		{"case insensitive", Entry{"R and D", "R&D"}, "r and d 예산", "R&D 예산"},
		{"every occurrence", Entry{"국감", "국정감사"}, "국감 그리고 국감", "국정감사 그리고 국정감사"},
		{"value contains key", Entry{"상임위", "상임위원회"}, "상임위 회의", "상임위원회 회의"},
		{"already canonical", Entry{"상임위", "상임위원회"}, "상임위원회 회의", "상임위원회 회의"},
		{"mixed", Entry{"민주당", "더불어민주당"}, "더불어민주당과 민주당", "더불어민주당과 더불어민주당"},
		{"no match", Entry{"국감", "국정감사"}, "본회의", "본회의"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := newCorrection(tt.entry)
			if !ok {
				t.Fatal("expected correction")
			}
			if got := c.Apply(tt.input); got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCorrection_Idempotent(t *testing.T) {
	entries := []Entry{
		{"상임위", "상임위원회"},
		{"민주당", "더불어민주당"},
		{"국감", "국정감사"},
		{"웅성웅성", "[웅성]"},
	}
	input := "상임위에서 민주당 의원이 국감 도중 웅성웅성"
	for _, e := range entries {
		c, _ := newCorrection(e)
		once := c.Apply(input)
		if twice := c.Apply(once); twice != once {
			t.Errorf("%s: second pass changed %q to %q", e.Key, once, twice)
		}
	}
}

func TestNewCorrection_SkipsIdentityAndEmpty(t *testing.T) {
	if _, ok := newCorrection(Entry{"이재명", "이재명"}); ok {
		t.Error("expected identity entry to be skipped")
	}
	if _, ok := newCorrection(Entry{"", "x"}); ok {
		t.Error("expected empty key to be skipped")
	}
}

func TestMask_CountsEveryOccurrence(t *testing.T) {
	m := Mask{Label: ProfanityMask, re: regexp.MustCompile("(?i)" + regexp.QuoteMeta("x발"))}
	got, n := m.Apply("X발 이건 x발")
	if got != "*** 이건 ***" {
		t.Errorf("unexpected masked text %q", got)
	}
	if n != 2 {
		t.Errorf("expected 2 replacements, got %d", n)
	}
}

func TestNumeral_Apply(t *testing.T) {
	d, err := LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults() error = %v", err)
	}
	snap := build(d, NewDocument(), zerolog.Nop())

	tests := []struct {
		input string
		want  string
	}{
		{"5억원", "500,000,000원"},
		{"3 백만 원", "3,000,000원"},
		{"2조원", "2,000,000,000,000원"},
		{"천만원", "10,000,000원"},
		{"30 퍼센트", "30%"},
		{"5프로 인상", "5% 인상"},
		{"프로그램", "프로그램"},
	}
	for _, tt := range tests {
		got := tt.input
		for _, n := range snap.Numerals {
			got = n.Apply(got)
		}
		if got != tt.want {
			t.Errorf("numerals(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
