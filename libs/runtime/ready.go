package runtime

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// NewBaseMuxWithReady returns a mux serving /healthz (always ok) and /readyz
// (ok only when every check passes within 2s).
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writePlain(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if failures := runChecks(r.Context(), checks); len(failures) > 0 {
			writePlain(w, http.StatusServiceUnavailable, strings.Join(failures, "; "))
			return
		}
		writePlain(w, http.StatusOK, "ok")
	})
	return mux
}

// FreshnessCheck fails when the timestamp reported by last is zero or older
// than maxAge. Used for background loops that must keep making progress.
func FreshnessCheck(last func() time.Time, maxAge time.Duration, now func() time.Time) func(context.Context) error {
	if now == nil {
		now = time.Now
	}
	return func(context.Context) error {
		ts := last()
		if ts.IsZero() {
			return fmt.Errorf("no run recorded yet")
		}
		if age := now().Sub(ts); age > maxAge {
			return fmt.Errorf("last run %s ago (max %s)", age.Truncate(time.Second), maxAge)
		}
		return nil
	}
}

func runChecks(ctx context.Context, checks []ReadyCheck) []string {
	var failures []string
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check.Check(checkCtx)
		cancel()
		if err != nil {
			name := check.Name
			if name == "" {
				name = "dependency"
			}
			failures = append(failures, name+": "+err.Error())
		}
	}
	return failures
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
