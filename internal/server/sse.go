package server

import (
	"bufio"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// sseDone is the uniform termination sentinel every streaming client sees.
const sseDone = "data: [DONE]\n\n"

// relayStream copies an upstream SSE body to the client chunk by chunk.
// Each upstream data line is re-encoded as "data: <json>\n\n" and the stream
// always ends with exactly one [DONE] sentinel, whether or not the upstream
// sent its own. Non-data framing (events, comments, blank lines) is dropped.
func relayStream(c echo.Context, stream io.ReadCloser) error {
	defer stream.Close()

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	w := c.Response().Writer
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		if _, err := io.WriteString(w, "data: "+payload+"\n\n"); err != nil {
			// Client went away; nothing sensible left to do.
			return nil
		}
		c.Response().Flush()
	}

	// Errors mid-stream still terminate cleanly for the client.
	_, _ = io.WriteString(w, sseDone)
	c.Response().Flush()
	return nil
}
