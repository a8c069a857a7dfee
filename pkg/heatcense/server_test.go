package heatcense

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStreamServer_ActivatesRendererOnConnect(t *testing.T) {
	bus := NewFrameBus(nil)
	renderer := NewRenderer(DefaultRenderParams())
	srv := NewStreamServer("/stream.mjpeg", renderer, bus, nil)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/stream.mjpeg", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("expected multipart/x-mixed-replace content type, got %q", ct)
	}
	if renderer.Activate() {
		t.Fatal("expected the connected client to have activated the renderer")
	}
	renderer.Deactivate()

	bus.Publish(&Frame{Width: 1, Height: 1, Pixels: []float64{20}}, "test")

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("expected a multipart boundary line, got error: %v", err)
	}
	if !strings.Contains(line, "heatcenseframe") {
		t.Fatalf("expected boundary marker in first line, got %q", line)
	}
}

func TestStreamServer_DeactivatesOnDisconnect(t *testing.T) {
	bus := NewFrameBus(nil)
	renderer := NewRenderer(DefaultRenderParams())
	srv := NewStreamServer("/stream.mjpeg", renderer, bus, nil)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/stream.mjpeg", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if renderer.Activate() {
			renderer.Deactivate()
			return
		}
		renderer.Deactivate()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected renderer subscriber count to return to zero after client disconnect")
}
