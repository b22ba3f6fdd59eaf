package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/V4T54L/detection-feed/internal/adapter/api/handler"
	"github.com/V4T54L/detection-feed/internal/adapter/api/middleware"
	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
	"github.com/V4T54L/detection-feed/internal/pkg/config"
)

// NewRouter creates and configures the public HTTP router: uploads, the
// event listing and its live stream, and static serving of the watched
// directory.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
	events *handler.EventHandler,
	stream http.Handler,
) http.Handler {
	mux := http.NewServeMux()

	rateLimit := middleware.RateLimit(cfg.UploadRateLimit, cfg.UploadRateBurst, func() {
		m.Upload("rate_limited")
	})

	// Routes
	mux.Handle("POST /upload-event", rateLimit(http.HandlerFunc(events.Upload)))
	mux.HandleFunc("GET /api/event-images", events.List)
	mux.Handle("GET /api/event-images/stream", stream)

	prefix := strings.TrimRight(cfg.StaticPrefix, "/")
	static := http.FileServer(staticDir{http.Dir(cfg.WatchDir)})
	mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix, static))

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return middleware.Logging(logger)(middleware.CORS(cfg.CORSAllowedOrigin)(mux))
}

// staticDir serves regular files only. Dot-files (in-flight uploads) and
// directory listings are reported as missing.
type staticDir struct {
	root http.FileSystem
}

func (d staticDir) Open(name string) (http.File, error) {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return nil, fs.ErrNotExist
		}
	}

	f, err := d.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
