package instance

import "os"

// ID names the running process for log fields. WORKER_ID wins, then the
// platform dyno name, then fallback.
func ID(fallback string) string {
	for _, key := range []string{"WORKER_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return fallback
}
