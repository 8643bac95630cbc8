package logger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/druzalexandra-jpg/food-diary-bot-new/internal/testutil"
)

func TestNew(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	l := New(&a, &b)

	l.Debug("hidden")
	l.Info("shown", "product", "овсянка")
	l.Level.Set(slog.LevelDebug)
	l.Debug("now visible")
	l.Warn("unknown product", "product", "яблоко")

	for _, buf := range []*bytes.Buffer{&a, &b} {
		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Errorf("debug record logged at info level: %q", out)
		}
		for _, want := range []string{"shown", "product=овсянка", "now visible", "level=WARN msg=\"unknown product\" product=яблоко"} {
			if !strings.Contains(out, want) {
				t.Errorf("output %q does not contain %q", out, want)
			}
		}
	}
}

func TestStreamer(t *testing.T) {
	t.Parallel()

	s := NewStreamer(5)
	for i := range 6 {
		// The first line is pushed out due to buffer size.
		fmt.Fprintf(s, "Line %d\n", i+1)
	}
	// Incomplete lines are kept until a newline arrives.
	s.Write([]byte("partial"))

	lines := s.Lines()
	testutil.AssertEqual(t, lines, []string{"Line 2\n", "Line 3\n", "Line 4\n", "Line 5\n", "Line 6\n"})

	stream, close := s.Stream()
	defer close()

	go s.Write([]byte(" line\n"))

	select {
	case line := <-stream:
		testutil.AssertEqual(t, line, "partial line\n")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for streamed line")
	}
}

func TestStreamerServeHTTP(t *testing.T) {
	t.Parallel()

	s := NewStreamer(5)
	s.Write([]byte("old line\n"))

	req := httptest.NewRequest(http.MethodGet, "/debug/logs", nil)
	req.Header.Set("Accept", "text/event-stream")
	ctx, cancel := context.WithTimeout(req.Context(), 500*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.Write([]byte("HTTP line\n"))
	}()

	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	testutil.AssertEqual(t, w.Result().Header.Get("Content-Type"), "text/event-stream")
	body := w.Body.String()
	for _, want := range []string{"event: logline\ndata: old line\n", "event: logline\ndata: HTTP line\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q does not contain %q", body, want)
		}
	}
}
