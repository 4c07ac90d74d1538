package postprocess

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDetectMusic(t *testing.T) {
	snap := newTestStore(t, "").Snapshot()

	tests := []struct {
		name      string
		raw       string
		scores    *Scores
		wantMusic bool
		wantLabel string
		wantConf  float64
	}{
		{"note symbol", "♪♪", nil, true, LabelMusic, 0.95},
		{"english marker", "[Music]", nil, true, LabelMusic, 0.95},
		{"korean marker", "(음악)", nil, true, LabelMusic, 0.95},
		{"korean scat", "라라라 라라라", nil, true, LabelSinging, 0.8},
		{"english scat", "La la la", nil, true, LabelSinging, 0.8},
		{"anthem", "동해물과 백두산이 마르고 닳도록", nil, true, LabelAnthem, 0.9},
		{"speech", "오늘 국무회의를 시작하겠습니다", nil, false, "", 0},
		{"english speech starting with scat syllable", "do you agree", nil, false, "", 0},
		{"empty", "   ", nil, false, "", 0},
		{"scores below default confidence", "음성 인식 결과", &Scores{NoSpeechProb: 0.99, AvgLogprob: -0.95}, false, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectMusic(snap, tt.raw, tt.scores, DefaultMusicThresholds())
			if got.IsMusic != tt.wantMusic {
				t.Fatalf("IsMusic = %v, want %v", got.IsMusic, tt.wantMusic)
			}
			if !tt.wantMusic {
				if got.Type != ContentSpeech {
					t.Errorf("Type = %q, want speech", got.Type)
				}
				return
			}
			if got.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", got.Label, tt.wantLabel)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
		})
	}
}

func TestDetectMusic_StatisticalWithLoweredThreshold(t *testing.T) {
	snap := newTestStore(t, "").Snapshot()
	th := DefaultMusicThresholds()
	th.MinConfidence = 0.5

	got := DetectMusic(snap, "음성 인식 결과", &Scores{NoSpeechProb: 0.99, AvgLogprob: -0.95}, th)
	if !got.IsMusic || got.Label != LabelMusic {
		t.Fatalf("expected statistical music detection, got %+v", got)
	}
	if got.Confidence <= 0.5 || got.Confidence >= 0.53 {
		t.Errorf("unexpected confidence %v", got.Confidence)
	}
}

func TestIsHallucination(t *testing.T) {
	snap := newTestStore(t, "").Snapshot()

	tests := []struct {
		text       string
		want       bool
		wantReason string
	}{
		{"", true, ReasonTooShort},
		{"네", true, ReasonTooShort},
		{"가나", true, ReasonTooShort},
		{"감사합니다", true, ReasonPattern},
		{"시청해 주셔서 감사합니다", true, ReasonPattern},
		{"Thanks for watching", true, ReasonPattern},
		{"자막 제작: 홍길동", true, ReasonPattern},
		{"출연 홍길동", true, ReasonPattern},
		{"진행자 홍길동", true, ReasonPattern},
		{"해설: 홍길동", true, ReasonPattern},
		{"기획 홍길동", true, ReasonPattern},
		{"제공 국민은행", true, ReasonPattern},
		{"예, 연결 중입니다", true, ReasonPattern},
		{"네 준비 중", true, ReasonPattern},
		{"이상 KTV 뉴스였습니다", true, ReasonPattern},
		{"All right reserved", true, ReasonPattern},
		{"ㅋㅋㅋㅋㅋ", true, ""},
		{"하하하하", true, ""},
		{"안녕 안녕", true, ""},
		{"좋아요좋아요좋아요", true, ""},
		{"회의 회의 회의 시작", true, ReasonRepeatedWord},
		{"오늘 국무회의를 시작하겠습니다", false, ""},
		{"이재명 대통령 각하", false, ""},
		{"예산안 심사를 진행합니다", false, ""},
		{"진행 상황을 점검하겠습니다", false, ""},
		{"정부가 제공하는 지원금입니다", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, reason := IsHallucination(snap, tt.text)
			if got != tt.want {
				t.Fatalf("IsHallucination(%q) = %v (%s), want %v", tt.text, got, reason, tt.want)
			}
			if tt.wantReason != "" && reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestRepeatedPhrase(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"abab", true},
		{"ab ab ab", true},
		{"안녕하세요안녕하세요", true},
		{"abcabd", false},
		{"abcdefabcdef", false},
		{"ab", false},
	}
	for _, tt := range tests {
		if got := repeatedPhrase([]rune(tt.text)); got != tt.want {
			t.Errorf("repeatedPhrase(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestInsertSpeakerBreaks_ShortTextUnchanged(t *testing.T) {
	snap := newTestStore(t, "").Snapshot()

	if got := InsertSpeakerBreaks(snap, "네 네"); got != "네 네" {
		t.Errorf("short text changed to %q", got)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		minLen int
		want   []string
	}{
		{
			name:   "fits on one line",
			text:   "짧은 문장",
			maxLen: 20, minLen: 5,
			want: []string{"짧은 문장"},
		},
		{
			name:   "sentence end",
			text:   "첫번째 문장입니다. 두번째 문장은 조금 더 깁니다",
			maxLen: 20, minLen: 5,
			want: []string{"첫번째 문장입니다.", "두번째 문장은 조금 더 깁니다"},
		},
		{
			name:   "forced cut",
			text:   strings.Repeat("가", 50),
			maxLen: 20, minLen: 5,
			want: []string{strings.Repeat("가", 20), strings.Repeat("가", 20), strings.Repeat("가", 10)},
		},
		{
			name:   "short tail merged",
			text:   "가나다라마바사.   아",
			maxLen: 10, minLen: 4,
			want: []string{"가나다라마바사. 아"},
		},
		{
			name:   "empty",
			text:   "   ",
			maxLen: 10, minLen: 4,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitLines(tt.text, tt.maxLen, tt.minLen)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitLines() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitLines_NeverExceedsMax(t *testing.T) {
	inputs := []string{
		"오늘 회의는 여기까지입니다 네, 수고하셨습니다 그리고 다음 회의는 내일 오전 열 시에 열립니다",
		"예산안에 대해서는, 상임위원회에서 충분히 논의한 뒤에, 본회의에 상정하도록 하겠습니다",
		"질문 있습니까? 없으시면 다음 안건으로 넘어가겠습니다! 의사일정 제2항입니다.",
		strings.Repeat("띄어쓰기없는아주긴문장", 8),
	}
	for _, maxLen := range []int{12, 18, 25, 40} {
		for _, in := range inputs {
			lines := SplitLines(in, maxLen, 5)
			if len(lines) == 0 {
				t.Fatalf("no lines for %q", in)
			}
			for _, l := range lines {
				if n := utf8.RuneCountInString(l); n > maxLen {
					t.Errorf("max %d: line %q has %d runes", maxLen, l, n)
				}
				if l == "" {
					t.Errorf("max %d: empty line in %q", maxLen, lines)
				}
			}
		}
	}
}

func TestFormatLines(t *testing.T) {
	got := FormatLines("첫번째 문장입니다. 두번째 문장은 조금 더 깁니다", 20)
	if got != "첫번째 문장입니다. 두번째 문장은\n조금 더 깁니다" {
		t.Errorf("FormatLines() = %q", got)
	}
}
