package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/GriffinCanCode/voicerelay/internal/audio"
	"github.com/GriffinCanCode/voicerelay/internal/errors"
	"github.com/GriffinCanCode/voicerelay/internal/metrics"
	"github.com/GriffinCanCode/voicerelay/internal/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New("sk-test", append([]Option{WithBaseURL(srv.URL)}, opts...)...)
}

func TestReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "gpt-4o" {
			t.Errorf("model = %q, want gpt-4o", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != DefaultSystemPrompt {
			t.Errorf("system message = %+v", req.Messages)
		}
		if req.Messages[1].Role != "user" || req.Messages[1].Content != "hello" {
			t.Errorf("user message = %+v", req.Messages[1])
		}

		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  Hey! What's up?\n"}}]}`)
	})

	got, err := c.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if got != "Hey! What's up?" {
		t.Errorf("Reply() = %q, want trimmed reply", got)
	}
}

func TestReplyCustomModelAndPrompt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-4o-mini" || req.Messages[0].Content != "Be brief." {
			t.Errorf("request = %+v", req)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}, WithModels(Models{Chat: "gpt-4o-mini"}), WithSystemPrompt("Be brief."))

	if _, err := c.Reply(context.Background(), "hi"); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
}

func TestReplyNoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})

	_, err := c.Reply(context.Background(), "hello")
	if !errors.IsCode(err, errors.CodeDialogueFailed) {
		t.Errorf("Reply() error = %v, want DIALOGUE_FAILED", err)
	}
}

func TestTranscribe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q, want whisper-1", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		if hdr.Filename != "audio.wav" {
			t.Errorf("filename = %q, want audio.wav", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "RIFF-clip" {
			t.Errorf("uploaded %q", data)
		}
		_, _ = io.WriteString(w, `{"text":"hello there"}`)
	})

	got, err := c.Transcribe(context.Background(), strings.NewReader("RIFF-clip"), audio.FormatWAV)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "hello there" {
		t.Errorf("Transcribe() = %q", got)
	}
}

func TestTranscribeRejectedClip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid file format.","type":"invalid_request_error"}}`)
	})

	_, err := c.Transcribe(context.Background(), strings.NewReader("x"), audio.FormatMP3)
	if !errors.IsCode(err, errors.CodeTranscriptionFailed) {
		t.Fatalf("Transcribe() error = %v, want TRANSCRIPTION_FAILED", err)
	}
	if got := errors.UserMessage(err); got != "Transcription failed." {
		t.Errorf("UserMessage = %q", got)
	}
	if !strings.Contains(err.Error(), "Invalid file format.") {
		t.Errorf("error should keep upstream detail for logs: %v", err)
	}
}

func TestSynthesize(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req speechRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		want := speechRequest{Model: "tts-1", Voice: "nova", Input: "Hey!", ResponseFormat: "mp3"}
		if req != want {
			t.Errorf("request = %+v, want %+v", req, want)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3mp3"))
	})

	got, err := c.Synthesize(context.Background(), "Hey!")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(got) != "ID3mp3" {
		t.Errorf("Synthesize() = %q", got)
	}
}

func TestSynthesizeEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := c.Synthesize(context.Background(), "Hey!")
	if !errors.IsCode(err, errors.CodeSynthesisFailed) {
		t.Errorf("Synthesize() error = %v, want SYNTHESIS_FAILED", err)
	}
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	var transitions atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	},
		WithBreakerConfig(resilience.Config{Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1}),
		WithBreakerHook(func(name string, _, to resilience.State) {
			if name == ServiceNarration && to == resilience.Open {
				transitions.Add(1)
			}
		}),
	)

	for i := 0; i < 2; i++ {
		if _, err := c.Synthesize(context.Background(), "x"); !errors.IsCode(err, errors.CodeSynthesisFailed) {
			t.Errorf("call %d error = %v, want SYNTHESIS_FAILED", i, err)
		}
	}

	_, err := c.Synthesize(context.Background(), "x")
	if !errors.IsCode(err, errors.CodeUpstreamUnavailable) {
		t.Errorf("open breaker error = %v, want UPSTREAM_UNAVAILABLE", err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
	if transitions.Load() != 1 {
		t.Errorf("open transitions = %d, want 1", transitions.Load())
	}
	if c.Breaker(ServiceNarration).State() != resilience.Open {
		t.Error("narration breaker should be open")
	}
	if c.Breaker(ServiceDialogue).State() != resilience.Closed {
		t.Error("dialogue breaker should be unaffected")
	}
}

func TestClientErrorsDoNotOpenBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}, WithBreakerConfig(resilience.Config{Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1}))

	for i := 0; i < 3; i++ {
		_, _ = c.Reply(context.Background(), "x")
	}
	if c.Breaker(ServiceDialogue).State() != resilience.Closed {
		t.Error("4xx responses should not open the breaker")
	}
}

func TestRateLimitCountsAgainstBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithBreakerConfig(resilience.Config{Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1}))

	_, _ = c.Reply(context.Background(), "x")
	if c.Breaker(ServiceDialogue).State() != resilience.Open {
		t.Error("429 should open the breaker")
	}
}

func TestCallIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _ = c.Reply(context.Background(), "x")
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want exactly 1", hits.Load())
	}
}

func TestMetricsRecorded(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text":"hi"}`)
	}, WithMetrics(m))

	if _, err := c.Transcribe(context.Background(), strings.NewReader("x"), audio.FormatWAV); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.UpstreamCalls.WithLabelValues(ServiceSpeech, "OK")); got != 1 {
		t.Errorf("speech calls = %v, want 1", got)
	}
}

func TestParseErrorPlainBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadRequest)
	})

	_, err := c.Reply(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "upstream exploded") {
		t.Errorf("Reply() error = %v, want plain body in detail", err)
	}
}
