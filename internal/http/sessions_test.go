package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"ktv-subtitle-service/internal/archive"
	"ktv-subtitle-service/internal/models"
)

func seedSession(t *testing.T, s *testServer, id string, started time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := s.archive.CreateSession(ctx, archive.Session{ID: id, Engine: "mock", Source: "news.mp4", StartedAt: started}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	subs := []models.Subtitle{
		{ID: 1, StartTime: 0, EndTime: 2.5, Text: "안녕하십니까 KTV 뉴스입니다", Speaker: models.StringPtr("화자1"), IsFinal: true},
		{ID: 2, StartTime: 2.5, EndTime: 5, Text: "오늘 국회 본회의에서는 내년도 예산안이 상정되었습니다", Speaker: models.StringPtr("화자2"), IsFinal: true},
	}
	for _, sub := range subs {
		if err := s.archive.AppendSubtitle(ctx, id, sub); err != nil {
			t.Fatalf("AppendSubtitle() error = %v", err)
		}
	}
	if err := s.archive.FinishSession(ctx, id, "closed", started.Add(5*time.Second)); err != nil {
		t.Fatalf("FinishSession() error = %v", err)
	}
}

func TestSessions_ListAndGet(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()
	seedSession(t, s, "older", now.Add(-time.Hour))
	seedSession(t, s, "newer", now)

	resp, body := s.do(t, http.MethodGet, "/v1/sessions", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list []archivedSession
	decode(t, body, &list)
	if len(list) != 2 || list[0].ID != "newer" || list[1].ID != "older" {
		t.Errorf("unexpected session list %+v", list)
	}

	_, body = s.do(t, http.MethodGet, "/v1/sessions?limit=1", "")
	decode(t, body, &list)
	if len(list) != 1 || list[0].ID != "newer" {
		t.Errorf("limit not applied: %+v", list)
	}

	for _, limit := range []string{"0", "-3", "many"} {
		resp, _ := s.do(t, http.MethodGet, "/v1/sessions?limit="+limit, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", limit, resp.StatusCode)
		}
	}

	resp, body = s.do(t, http.MethodGet, "/v1/sessions/older", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got archivedSession
	decode(t, body, &got)
	if got.State != "closed" || got.Subtitles != 2 || got.EndedAt == nil || got.Source != "news.mp4" {
		t.Errorf("unexpected session %+v", got)
	}

	resp, _ = s.do(t, http.MethodGet, "/v1/sessions/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", resp.StatusCode)
	}
}

func TestSessions_Export(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "abc", time.Now())

	tests := []struct {
		name        string
		query       string
		contentType string
		filename    string
		want        []string
	}{
		{
			name:        "srt",
			query:       "",
			contentType: "application/x-subrip; charset=utf-8",
			filename:    `attachment; filename="abc.srt"`,
			want: []string{
				"1\n00:00:00,000 --> 00:00:02,500\n안녕하십니까 KTV 뉴스입니다\n\n",
				"2\n00:00:02,500 --> 00:00:05,000\n",
			},
		},
		{
			name:        "srt with speaker",
			query:       "?format=srt&speaker=true",
			contentType: "application/x-subrip; charset=utf-8",
			filename:    `attachment; filename="abc.srt"`,
			want:        []string{"[화자1] 안녕하십니까", "[화자2] 오늘"},
		},
		{
			name:        "vtt with speaker",
			query:       "?format=vtt&speaker=true",
			contentType: "text/vtt; charset=utf-8",
			filename:    `attachment; filename="abc.vtt"`,
			want:        []string{"WEBVTT\n\n", "00:00:00.000 --> 00:00:02.500\n<v 화자1>안녕하십니까"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodGet, "/v1/sessions/abc/export"+tt.query, "")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d (%s)", resp.StatusCode, body)
			}
			if ct := resp.Header.Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if cd := resp.Header.Get("Content-Disposition"); cd != tt.filename {
				t.Errorf("Content-Disposition = %q, want %q", cd, tt.filename)
			}
			for _, w := range tt.want {
				if !strings.Contains(string(body), w) {
					t.Errorf("export missing %q:\n%s", w, body)
				}
			}
		})
	}
}

func TestSessions_ExportWrapsLines(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "abc", time.Now())

	_, body := s.do(t, http.MethodGet, "/v1/sessions/abc/export?max_chars=12", "")
	for _, line := range strings.Split(string(body), "\n") {
		if strings.Contains(line, "-->") {
			continue
		}
		if n := utf8.RuneCountInString(line); n > 12 {
			t.Errorf("line %q has %d runes, want <= 12", line, n)
		}
	}

	_, body = s.do(t, http.MethodGet, "/v1/sessions/abc/export?max_chars=rules", "")
	for _, line := range strings.Split(string(body), "\n") {
		if strings.Contains(line, "-->") {
			continue
		}
		if n := utf8.RuneCountInString(line); n > 18 {
			t.Errorf("rules: line %q has %d runes, want <= 18", line, n)
		}
	}
}

func TestSessions_ExportErrors(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "abc", time.Now())

	tests := []struct {
		path string
		want int
	}{
		{"/v1/sessions/abc/export?format=ass", http.StatusBadRequest},
		{"/v1/sessions/abc/export?max_chars=0", http.StatusBadRequest},
		{"/v1/sessions/abc/export?max_chars=wide", http.StatusBadRequest},
		{"/v1/sessions/missing/export", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, _ := s.do(t, http.MethodGet, tt.path, "")
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestSessions_Active(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/v1/sessions/active", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("expected empty list, got %s", body)
	}

	resp, _ = s.do(t, http.MethodDelete, "/v1/sessions/unknown", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("stop unknown status = %d, want 404", resp.StatusCode)
	}
}

func TestSessions_StopLive(t *testing.T) {
	s := newTestServer(t)
	conn := dialLive(t, s, "")
	init := readEvent(t, conn)

	_, body := s.do(t, http.MethodGet, "/v1/sessions/active", "")
	var active []activeSession
	decode(t, body, &active)
	if len(active) != 1 || active[0].ID != init.SessionID || active[0].Engine != "mock" || !active[0].RealTime {
		t.Fatalf("unexpected active sessions %+v", active)
	}

	resp, _ := s.do(t, http.MethodDelete, "/v1/sessions/"+init.SessionID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("stop status = %d, want 204", resp.StatusCode)
	}

	// The client sees the end of the session, then a close frame.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	got, err := s.archive.GetSession(context.Background(), init.SessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.State != "cancelled" {
		t.Errorf("state = %q, want cancelled", got.State)
	}
}
