package dashboard

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	logPollInterval = 500 * time.Millisecond
	logPollTimeout  = 60 * time.Second
)

// newestLogFile returns the most recently named "<id>-*.jsonl" file
// for a plan, or "" if none exists yet. File names sort lexically by
// their embedded timestamp, so the lexically greatest match is also
// the most recent.
func newestLogFile(logsDir string, planID int64) (string, error) {
	matches, err := filepath.Glob(filepath.Join(logsDir, fmt.Sprintf("%d-*.jsonl", planID)))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// handleLogs streams a plan's log file over SSE: existing lines first,
// then newly appended lines as they are written. It never watches the
// filesystem directly — it polls, accepting the same latency tradeoff
// for catching the log file's first write.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathPlanID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	path, err := s.awaitLogFile(r, id)
	if err != nil {
		fmt.Fprintf(w, "event: done\ndata: timeout\n\n")
		flusher.Flush()
		return
	}

	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(w, "event: done\ndata: timeout\n\n")
		flusher.Flush()
		return
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(logPollInterval)
	defer ticker.Stop()

	for {
		for {
			line, readErr := reader.ReadString('\n')
			if line != "" {
				fmt.Fprintf(w, "event: log\ndata: %s\n\n", trimNewline(line))
				flusher.Flush()
			}
			if readErr != nil {
				break
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// awaitLogFile polls for plan id's log file to appear, bounded by
// logPollTimeout, returning early once found or once the client
// disconnects.
func (s *Server) awaitLogFile(r *http.Request, id int64) (string, error) {
	deadline := time.Now().Add(logPollTimeout)
	for {
		path, err := newestLogFile(s.LogsDir, id)
		if err != nil {
			return "", err
		}
		if path != "" {
			return path, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no log file appeared for plan %d within %s", id, logPollTimeout)
		}
		select {
		case <-r.Context().Done():
			return "", r.Context().Err()
		case <-time.After(logPollInterval):
		}
	}
}

func trimNewline(s string) string {
	return strings.TrimRight(s, "\r\n")
}
