package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// textStreamWriter streams assistant text as a chunked text/plain body. The
// status line is committed on the first write so earlier failures can still
// become error responses.
type textStreamWriter struct {
	c       *gin.Context
	started bool
}

func newTextStreamWriter(c *gin.Context) *textStreamWriter {
	return &textStreamWriter{c: c}
}

// WriteText implements turn.Sink.
func (w *textStreamWriter) WriteText(text string) error {
	if text == "" {
		return nil
	}
	w.commit()
	if _, err := w.c.Writer.WriteString(text); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

func (w *textStreamWriter) commit() {
	if w.started {
		return
	}
	w.started = true
	header := w.c.Writer.Header()
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	header.Set("X-Accel-Buffering", "no")
	w.c.Status(http.StatusOK)
	w.c.Writer.WriteHeaderNow()
}
