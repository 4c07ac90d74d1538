package audio

import "strings"

// StreamType classifies a remote media URL.
type StreamType string

const (
	StreamYouTubeLive  StreamType = "youtube_live"
	StreamYouTubeVideo StreamType = "youtube_video"
	StreamHLS          StreamType = "hls"
	StreamRTMP         StreamType = "rtmp"
	StreamDirect       StreamType = "direct"
	StreamUnknown      StreamType = "unknown"
)

var directExtensions = []string{".mp4", ".webm", ".mkv", ".avi", ".mov", ".flv"}

// DetectStreamType classifies url and returns a short description.
func DetectStreamType(url string) (StreamType, string) {
	u := strings.ToLower(strings.TrimSpace(url))

	switch {
	case strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be"):
		if strings.Contains(u, "live") {
			return StreamYouTubeLive, "YouTube live stream"
		}
		return StreamYouTubeVideo, "YouTube video"
	case strings.Contains(u, "m3u8"):
		return StreamHLS, "HLS stream (m3u8)"
	case strings.HasPrefix(u, "rtmp://") || strings.HasPrefix(u, "rtmps://"):
		return StreamRTMP, "RTMP stream"
	}
	for _, ext := range directExtensions {
		if strings.HasSuffix(u, ext) {
			return StreamDirect, "direct media URL (" + ext + ")"
		}
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return StreamDirect, "HTTP stream"
	}
	return StreamUnknown, "unknown format"
}

// Decodable reports whether ffmpeg can read the stream type directly.
// YouTube pages need an external resolver first.
func (t StreamType) Decodable() bool {
	switch t {
	case StreamHLS, StreamRTMP, StreamDirect:
		return true
	default:
		return false
	}
}
