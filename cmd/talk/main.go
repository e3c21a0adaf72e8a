// Talk - terminal client that records the microphone and chats with a relay server
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/joho/godotenv"

	"github.com/GriffinCanCode/voicerelay/internal/audio"
	"github.com/GriffinCanCode/voicerelay/internal/audio/capture"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type reply struct {
	Message string `json:"message"`
	Audio   []byte `json:"audio"`
	Error   string `json:"error"`
}

type transcription struct {
	Text  *string `json:"text"`
	Error string  `json:"error"`
}

func main() {
	_ = godotenv.Load()

	url := flag.String("url", envOr("RELAY_URL", "ws://localhost:5000/ws"), "relay websocket URL")
	device := flag.String("device", os.Getenv("MIC_DEVICE"), "preferred microphone name fragment")
	rate := flag.Int("rate", 16000, "capture sample rate")
	maxLen := flag.Duration("max", 30*time.Second, "longest clip to record")
	saveDir := flag.String("save", "", "directory to save narrated replies as mp3")
	mute := flag.Bool("mute", false, "do not play narrated replies")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, err := capture.NewRecorder(capture.Config{
		SampleRate: *rate,
		MaxLength:  *maxLen,
		Device:     *device,
	})
	if err != nil {
		slog.Error("microphone unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = rec.Close() }()

	conn, _, err := websocket.Dial(ctx, *url, nil)
	if err != nil {
		slog.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(64 << 20)

	fmt.Printf("connected to %s using %q\n", *url, rec.Device())
	fmt.Println("press Enter to start talking, Enter again to send, q to quit")

	c := &client{conn: conn, saveDir: *saveDir, mute: *mute}
	go c.listen(ctx, stop)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || line == "q" {
				return
			}
			if err := c.talk(ctx, rec, lines); err != nil {
				slog.Error("recording failed", "error", err)
			}
		}
	}
}

type client struct {
	conn    *websocket.Conn
	saveDir string
	mute    bool
	replies int
}

// talk records until the next line on stdin and sends the clip.
func (c *client) talk(ctx context.Context, rec *capture.Recorder, lines <-chan string) error {
	recCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		pcm audio.PCM
		err error
	}
	done := make(chan result, 1)
	go func() {
		pcm, err := rec.Record(recCtx)
		done <- result{pcm, err}
	}()

	fmt.Println("recording...")
	select {
	case <-lines:
	case <-ctx.Done():
	}
	cancel()

	res := <-done
	if res.err != nil {
		return res.err
	}
	fmt.Printf("sending %.1fs of audio\n", res.pcm.Duration().Seconds())

	clip, err := audio.EncodeWAV(res.pcm)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageBinary, clip)
}

// listen prints server events until the connection closes, then calls stop.
func (c *client) listen(ctx context.Context, stop func()) {
	defer stop()
	for {
		var f frame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			if ctx.Err() == nil {
				fmt.Println("disconnected:", err)
			}
			return
		}

		switch f.Event {
		case "response_with_audio":
			var r reply
			if err := json.Unmarshal(f.Data, &r); err != nil {
				slog.Warn("bad reply", "error", err)
				continue
			}
			c.showReply(r)
			c.play(ctx, r.Audio)
		case "stt_response":
			var t transcription
			if err := json.Unmarshal(f.Data, &t); err != nil {
				slog.Warn("bad transcription", "error", err)
				continue
			}
			if t.Text == nil {
				fmt.Println("!", t.Error)
				continue
			}
			fmt.Println("you:", *t.Text)
			if err := wsjson.Write(ctx, c.conn, map[string]any{"event": "message", "data": *t.Text}); err != nil {
				slog.Error("send failed", "error", err)
			}
		default:
			slog.Debug("ignoring event", "event", f.Event)
		}
	}
}

func (c *client) showReply(r reply) {
	if r.Message != "" {
		fmt.Println("assistant:", r.Message)
	}
	if r.Error != "" {
		fmt.Println("!", r.Error)
	}
	if len(r.Audio) == 0 || c.saveDir == "" {
		return
	}

	c.replies++
	path := filepath.Join(c.saveDir, fmt.Sprintf("reply-%03d.mp3", c.replies))
	if err := os.WriteFile(path, r.Audio, 0o644); err != nil {
		slog.Warn("failed to save reply audio", "path", path, "error", err)
		return
	}
	fmt.Println("  saved", path)
}

func (c *client) play(ctx context.Context, mp3 []byte) {
	if c.mute || len(mp3) == 0 {
		return
	}
	pcm, err := audio.Decode(mp3)
	if err != nil {
		slog.Warn("cannot decode reply audio", "error", err)
		return
	}
	if err := capture.Play(ctx, pcm); err != nil {
		slog.Warn("playback failed", "error", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
