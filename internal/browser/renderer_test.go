package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/camprush/camprush/internal/detect"
	"github.com/camprush/camprush/internal/logger"
)

var _ detect.Fetcher = (*Renderer)(nil)

func haveChrome() bool {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func TestDataURL(t *testing.T) {
	got := DataURL([]byte{0xff, 0xd8})
	if !strings.HasPrefix(got, "data:image/jpeg;base64,") || !strings.HasSuffix(got, "/9g=") {
		t.Errorf("unexpected data url %q", got)
	}
}

func TestRendererSeesScriptBuiltButton(t *testing.T) {
	if testing.Short() || !haveChrome() {
		t.Skip("headless chrome not available")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="app"></div>
<script>document.getElementById('app').innerHTML = '<button>Register</button>';</script>
</body></html>`))
	}))
	defer srv.Close()

	r := New(logger.Nop(), Options{UserAgent: "CampRushTest", Settle: 500 * time.Millisecond})
	defer r.Close()

	page, err := r.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !detect.Detect(page).ButtonSignal {
		t.Errorf("rendered DOM should expose the button: %s", page.Body)
	}
}
