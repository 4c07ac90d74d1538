package postprocess

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ktv-subtitle-service/internal/dictionary"
)

func newTestStore(t *testing.T, doc string) *dictionary.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stt_dictionaries.json")
	if doc != "" {
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatalf("write dictionary: %v", err)
		}
	}
	store, err := dictionary.NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestProcess_Scenarios(t *testing.T) {
	p := New(newTestStore(t, ""))

	tests := []struct {
		name        string
		input       string
		wantText    string
		wantDropped bool
	}{
		{"identity proper noun passes", "이재명 대통령 각하", "이재명 대통령 각하", false},
		{"music marker", "[music]", "[♪]", false},
		{"thank-you hallucination", "감사합니다", "", true},
		{"whitespace only", "   ", "", true},
		{"correction applied", "국민의뢰가 있겠습니다", "국민의례가 있겠습니다", false},
		{"edge punctuation stripped", "  오늘 회의를   시작하겠습니다. ", "오늘 회의를 시작하겠습니다", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Process(tt.input, Options{})
			if got.Dropped != tt.wantDropped {
				t.Fatalf("Dropped = %v (reason %q), want %v", got.Dropped, got.Reason, tt.wantDropped)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
		})
	}
}

func TestProcess_MusicShortCircuits(t *testing.T) {
	p := New(newTestStore(t, ""))

	got := p.Process("♪ 씨발 민주당 상임위 ♪", Options{DetectSpeakerChange: true})
	if got.Text != LabelMusic {
		t.Errorf("expected %q, got %q", LabelMusic, got.Text)
	}
	if !got.Music.IsMusic || got.Music.Confidence != 0.95 {
		t.Errorf("unexpected music result %+v", got.Music)
	}
	if got.ProfanityCount != 0 {
		t.Errorf("expected no safety stage, got profanity count %d", got.ProfanityCount)
	}
}

func TestProcess_ProfanityMaskedAndCounted(t *testing.T) {
	p := New(newTestStore(t, ""))

	got := p.Process("씨발 진짜 씨발", Options{})
	if got.Text != "*** 진짜 ***" {
		t.Errorf("unexpected text %q", got.Text)
	}
	if got.ProfanityCount != 2 {
		t.Errorf("expected profanity count 2, got %d", got.ProfanityCount)
	}
	if strings.Contains(got.Text, "씨발") {
		t.Error("profanity survived masking")
	}
}

func TestProcess_SensitiveMasked(t *testing.T) {
	p := New(newTestStore(t, ""))

	got := p.Process("연락처는 010-1234-5678 입니다", Options{})
	if got.Text != "연락처는 [전화번호] 입니다" {
		t.Errorf("unexpected text %q", got.Text)
	}
	if got.SensitiveCount != 1 {
		t.Errorf("expected sensitive count 1, got %d", got.SensitiveCount)
	}
}

func TestProcess_DynamicProfanity(t *testing.T) {
	p := New(newTestStore(t, `{"profanity":["바보멍청이"]}`))

	got := p.Process("이런 바보멍청이 같으니", Options{})
	if got.Text != "이런 *** 같으니" || got.ProfanityCount != 1 {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestProcess_PostprocessingDisabled(t *testing.T) {
	p := New(newTestStore(t, `{"subtitle_rules":{"postprocessing_enabled":false}}`))

	got := p.Process("민주당 상임위 씨발 회의 네, 알겠습니다", Options{DetectSpeakerChange: true})
	want := "민주당 상임위 *** 회의 네, 알겠습니다"
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
}

func TestProcess_ScoreGating(t *testing.T) {
	p := New(newTestStore(t, ""))
	text := "오늘 회의를 시작하겠습니다"

	tests := []struct {
		name   string
		scores *Scores
		reason string
	}{
		{"low logprob", &Scores{AvgLogprob: -1.0, NoSpeechProb: 0.1}, "low_confidence"},
		{"no speech", &Scores{AvgLogprob: -0.2, NoSpeechProb: 0.97}, "no_speech"},
		{"passes", &Scores{AvgLogprob: -0.3, NoSpeechProb: 0.2}, ""},
		{"no scores", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Process(text, Options{Scores: tt.scores})
			if got.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.reason)
			}
			if tt.reason == "" && got.Text != text {
				t.Errorf("Text = %q, want %q", got.Text, text)
			}
		})
	}
}

func TestProcess_SpeakerBreaks(t *testing.T) {
	p := New(newTestStore(t, ""))

	got := p.Process("질문 있습니까? 네 있습니다", Options{DetectSpeakerChange: true})
	if got.Text != "질문 있습니까?\n네 있습니다" {
		t.Errorf("unexpected text %q", got.Text)
	}

	plain := p.Process("질문 있습니까? 네 있습니다", Options{})
	if strings.Contains(plain.Text, "\n") {
		t.Errorf("expected no breaks without the option, got %q", plain.Text)
	}
}

func TestPreview(t *testing.T) {
	p := New(newTestStore(t, ""))

	if got := p.Preview("  씨발   뭐야 "); got != "*** 뭐야" {
		t.Errorf("Preview() = %q", got)
	}
	if got := p.Preview("감사합니다"); got != "감사합니다" {
		t.Errorf("Preview() should not filter hallucinations, got %q", got)
	}
}

func TestCorrect_Idempotent(t *testing.T) {
	snap := newTestStore(t, "").Snapshot()

	inputs := []string{
		"상임위 민주당 국감 5억원 30퍼센트 에이아이",
		"국민 의뢰 후 국무 회의를 시작합니다",
		"더민주 의원이 예결위에서 발언했습니다",
		"웅성웅성 유엔 나토 회의",
	}
	for _, in := range inputs {
		once := Correct(snap, in)
		if twice := Correct(snap, once); twice != once {
			t.Errorf("second pass changed %q to %q", once, twice)
		}
	}
}

func TestCorrect_Order(t *testing.T) {
	snap := newTestStore(t, "").Snapshot()

	got := Correct(snap, "상임위 민주당 에이아이 5억원 30퍼센트")
	want := "상임위원회 더불어민주당 AI 500,000,000원 30%"
	if got != want {
		t.Errorf("Correct() = %q, want %q", got, want)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  안녕하세요,   여러분!! ", "안녕하세요, 여러분"},
		{"\t줄\n바꿈  ", "줄 바꿈"},
		{"...", ""},
		{"한글", "한글"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
