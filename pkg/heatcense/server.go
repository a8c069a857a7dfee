package heatcense

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// StreamServer serves the on-demand MJPEG stream. No frame is rendered
// and no upstream subscription is held while zero clients are
// connected: each client holds its own frame-bus subscription only for
// as long as it is connected, and counts itself in the Renderer's
// activation counter through Activate/Deactivate.
type StreamServer struct {
	path     string
	renderer *Renderer
	bus      *FrameBus
	logger   *slog.Logger
}

// NewStreamServer builds a server that renders frames from bus through
// renderer and serves them as multipart/x-mixed-replace at path.
func NewStreamServer(path string, renderer *Renderer, bus *FrameBus, logger *slog.Logger) *StreamServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamServer{path: path, renderer: renderer, bus: bus, logger: logger}
}

// Handler returns an http.Handler serving the stream at s.path.
func (s *StreamServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.serveStream)
	return mux
}

func (s *StreamServer) serveStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.renderer.Activate()
	frames := s.bus.Subscribe(4)
	defer func() {
		s.bus.Unsubscribe(frames)
		if s.renderer.Deactivate() {
			s.logger.Debug("last mjpeg client disconnected, renderer idle")
		}
	}()
	s.logger.Debug("mjpeg client connected", "remote", r.RemoteAddr)

	const boundary = "heatcenseframe"
	w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", boundary))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	mw := multipart.NewWriter(w)
	defer mw.Close()
	if err := mw.SetBoundary(boundary); err != nil {
		s.logger.Error("failed to set multipart boundary", "error", err)
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			jpegBytes, err := s.renderer.Render(f)
			if err != nil {
				s.logger.Warn("dropping frame", "error", err)
				continue
			}

			header := textproto.MIMEHeader{}
			header.Set("Content-Type", "image/jpeg")
			header.Set("Content-Length", fmt.Sprintf("%d", len(jpegBytes)))
			part, err := mw.CreatePart(header)
			if err != nil {
				return
			}
			if _, err := part.Write(jpegBytes); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts
// it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mjpeg server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
