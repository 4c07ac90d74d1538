package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"ktv-subtitle-service/internal/audio"
	"ktv-subtitle-service/internal/models"
)

// Stream audio in chunks to simulate a live feed.
// At 16kHz 16-bit mono = 32000 bytes/second
// 100ms chunks = 3200 bytes
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverAddr := flag.String("server", "localhost:8080", "Subtitle service HTTP address")
	engine := flag.String("engine", "", "Recognition backend (default: server default)")
	diarization := flag.Bool("diarization", true, "Attribute speakers")
	speakerChange := flag.Bool("speaker-change", false, "Run speaker-change detection")
	previews := flag.Bool("previews", false, "Request preview subtitles")
	realtime := flag.Bool("realtime", true, "Pace chunks at playback speed")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	format, err := audio.ReadWAVHeader(f)
	if err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	log.Printf("WAV file: channels=%d sampleRate=%d bitsPerSample=%d",
		format.Channels, format.SampleRate, format.BitsPerSample)
	if format.Channels != 1 || format.BitsPerSample != 16 {
		log.Fatal("Only 16-bit mono PCM is supported")
	}
	if format.SampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz", format.SampleRate)
	}

	q := url.Values{}
	if *engine != "" {
		q.Set("engine", *engine)
	}
	q.Set("enable_diarization", strconv.FormatBool(*diarization))
	q.Set("detect_speaker_change", strconv.FormatBool(*speakerChange))
	q.Set("previews", strconv.FormatBool(*previews))
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/v1/realtime/ws", RawQuery: q.Encode()}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("Failed to connect: %v (HTTP %d)", err, resp.StatusCode)
		}
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", u.String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		readEvents(conn)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	chunkSize := format.ByteRate() * chunkIntervalMs / 1000
	chunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

stream:
	for {
		n, err := io.ReadFull(f, chunk)
		if n > 0 {
			chunkNum++
			totalBytes += int64(n)
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk[:n]); err != nil {
				log.Fatalf("Failed to send chunk: %v", err)
			}
			if chunkNum%50 == 0 {
				log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		if *realtime {
			select {
			case <-time.After(chunkIntervalMs * time.Millisecond):
			case <-interrupt:
				log.Println("Interrupted, ending audio")
				break stream
			case <-done:
				log.Println("Server ended the session")
				return
			}
		}
	}

	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime))
	log.Println("Sending EOS, waiting for final subtitles...")
	if err := conn.WriteMessage(websocket.TextMessage, []byte("EOS")); err != nil {
		log.Fatalf("Failed to send EOS: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Minute):
		log.Println("Timed out waiting for the session to finish")
	}
}

func readEvents(conn *websocket.Conn) {
	for {
		var ev models.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Connection closed: %v", err)
			}
			return
		}
		switch ev.Type {
		case models.EventInit:
			log.Printf("Session %s started (engine=%s)", ev.SessionID, ev.Message)
		case models.EventSubtitle:
			sub := ev.Data
			if sub == nil {
				continue
			}
			kind := "final"
			if !sub.IsFinal {
				kind = "preview"
			}
			log.Printf("[%s] #%d %.2f-%.2f %s %s", kind, sub.ID, sub.StartTime, sub.EndTime, sub.SpeakerLabel(), sub.Text)
		case models.EventError:
			if ev.Error != nil {
				log.Printf("Session error (%s): %s", ev.Error.Kind, ev.Error.Message)
			}
		case models.EventComplete:
			log.Printf("Session %s completed", ev.SessionID)
		}
	}
}
