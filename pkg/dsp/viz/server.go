package viz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

type ImageContainer struct {
	name string
	data []byte
}

func (i *ImageContainer) Name() string { return i.name }
func (i *ImageContainer) Data() []byte { return i.data }

type Producer interface {
	Name() string
	GetImage() *ImageContainer
	AddPlotOption(opt PlotOptions)
}

// StatusFunc returns a JSON-encodable snapshot served at /status.
type StatusFunc func() interface{}

type ServerOption func(s *Server)

func WithStatus(fn StatusFunc) ServerOption {
	return func(s *Server) {
		s.status = fn
	}
}

type Server struct {
	images          map[string]map[string]*ImageContainer
	mu              sync.RWMutex
	port            int
	srv             *http.Server
	producerBuckets map[string]map[string]Producer
	updateInterval  time.Duration
	enabled         bool
	lastViewed      map[string]time.Time
	status          StatusFunc
}

func NewServer(port int, updateInterval time.Duration, opts ...ServerOption) *Server {
	s := &Server{
		images:          make(map[string]map[string]*ImageContainer),
		producerBuckets: make(map[string]map[string]Producer),
		port:            port,
		lastViewed:      make(map[string]time.Time),
		srv:             &http.Server{Addr: fmt.Sprintf(":%d", port)},
		updateInterval:  updateInterval,
		enabled:         true,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Server) Enable(enable bool) {
	s.mu.Lock()
	s.enabled = enable
	s.mu.Unlock()
}

func (s *Server) SetUpdateInterval(interval time.Duration) {
	s.mu.Lock()
	s.updateInterval = interval
	s.mu.Unlock()
}

// SetStatus replaces the /status source. It must be called before Run.
func (s *Server) SetStatus(fn StatusFunc) {
	s.mu.Lock()
	s.status = fn
	s.mu.Unlock()
}

func (s *Server) Register(key string, p Producer) {
	s.mu.Lock()
	bucket, ok := s.producerBuckets[key]
	if !ok {
		bucket = make(map[string]Producer)
		s.producerBuckets[key] = bucket
	}
	bucket[p.Name()] = p
	s.mu.Unlock()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// refresh renders every producer in the buckets viewed within the last
// second, or in all buckets when force is set.
func (s *Server) refresh(force bool) {
	s.mu.RLock()
	if !s.enabled {
		s.mu.RUnlock()
		return
	}
	var producers []Producer
	var bucketNames []string
	for bucketName, bucket := range s.producerBuckets {
		if !force && time.Since(s.lastViewed[bucketName]) >= time.Second {
			continue
		}
		for _, p := range bucket {
			producers = append(producers, p)
			bucketNames = append(bucketNames, bucketName)
		}
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for i, producer := range producers {
		wg.Add(1)
		go func(bucket string, p Producer) {
			defer wg.Done()

			img := p.GetImage()
			if img == nil {
				return
			}

			s.mu.Lock()
			mb, ok := s.images[bucket]
			if !ok {
				mb = make(map[string]*ImageContainer)
				s.images[bucket] = mb
			}
			mb[img.name] = img
			s.mu.Unlock()
		}(bucketNames[i], producer)
	}
	wg.Wait()
}

func (s *Server) interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updateInterval
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	handler := httprouter.New()
	handler.GET("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.mu.RLock()
		keys := make([]string, 0, len(s.producerBuckets))
		for name := range s.producerBuckets {
			keys = append(keys, name)
		}
		s.mu.RUnlock()

		if len(keys) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		sort.Strings(keys)

		w.Header().Set("Location", fmt.Sprintf("/view/%s", url.PathEscape(keys[0])))
		w.WriteHeader(http.StatusFound)
	})

	handler.GET("/view/:bucket", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		bucket := params.ByName("bucket")

		s.mu.Lock()
		itemsForBucket, ok := s.producerBuckets[bucket]
		if ok {
			s.lastViewed[bucket] = time.Now()
		}
		s.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		interval := s.interval()
		time.Sleep(interval)

		s.mu.RLock()
		defer s.mu.RUnlock()

		w.Header().Add("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>vfzsdr</title></head>`))

		w.Write([]byte(fmt.Sprintf(`
		<script type="text/javascript">
			var toggleRefresh = true;
			function toggleOn() {
				toggleRefresh = !toggleRefresh;
			}

			function changeBucket() {
				var val = document.getElementById('bucketSelector').value;
				window.location.href = '/view/' + val;
			}
			window.onload = function() {
				for (var i = 0; i < %d; i++) {
					var img = document.getElementById('graph-' + i);
					setInterval(function(image) {
						if (toggleRefresh) {
							image.src = image.src.split("?")[0] + "?" + new Date().getTime();
						}
					}, %d, img);
				}

			}
		</script>`, len(itemsForBucket), interval.Milliseconds())))
		w.Write([]byte(`<body style='background-color: black'>`))

		keys := make([]string, 0, len(s.producerBuckets))
		for key := range s.producerBuckets {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		w.Write([]byte(`<select id="bucketSelector" onchange="changeBucket()">`))
		for _, bucketName := range keys {
			selected := ""
			if bucketName == bucket {
				selected = " selected"
			}
			w.Write([]byte(fmt.Sprintf(`<option value="%s"%s>%s</option>`, bucketName, selected, bucketName)))
		}
		w.Write([]byte(`</select>`))
		w.Write([]byte(`<button onclick="toggleOn()">Refresh?</button>`))

		keys = make([]string, 0, len(itemsForBucket))
		for key := range itemsForBucket {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		w.Write([]byte(`<div style="display: flex; flex-direction: row; flex-wrap: wrap">`))
		for idx, key := range keys {
			w.Write([]byte(fmt.Sprintf(`<div><img id="graph-%d"
			src="/img/%s/%s?%d" />`, idx, url.PathEscape(bucket), url.PathEscape(key), time.Now().UnixNano()/1e3)))

			w.Write([]byte("</div>"))
		}

		w.Write([]byte(`</div>`))

		w.Write([]byte(`</body></html>`))
	})

	handler.GET("/img/:bucket/:img", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		bucketName := params.ByName("bucket")
		imgName := params.ByName("img")

		s.mu.Lock()
		s.lastViewed[bucketName] = time.Now()
		img, ok := s.images[bucketName][imgName]
		s.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Add("Content-Type", "image/png")
		w.Write(img.data)
	})

	handler.GET("/status", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.mu.RLock()
		status := s.status
		s.mu.RUnlock()

		if status == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return handler
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.interval()):
				s.refresh(false)
			}
		}
	}()

	s.srv.Handler = s.Handler()

	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
