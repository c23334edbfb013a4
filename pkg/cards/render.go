package cards

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/skillhost/skillhost/pkg/activity"
)

// AdaptiveCardContentType is the attachment content type for adaptive cards.
const AdaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

const maxCardOutput = 64 * 1024

// limitWriter caps output from template.Execute.
type limitWriter struct {
	w       io.Writer
	n       int64
	written int64
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if lw.written+int64(len(p)) > lw.n {
		allowed := lw.n - lw.written
		if allowed > 0 {
			n, err := lw.w.Write(p[:allowed])
			lw.written += int64(n)
			if err != nil {
				return n, err
			}
		}
		return 0, fmt.Errorf("card output exceeds %d bytes", lw.n)
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}

// Render executes the named card template with data and wraps the result
// as an adaptive card attachment. The output must be valid JSON.
func (l *Loader) Render(name string, data any) (*activity.Attachment, error) {
	tmpl, ok := l.get(name)
	if !ok {
		return nil, fmt.Errorf("card %q not loaded", name)
	}

	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, n: maxCardOutput}
	if err := tmpl.Execute(lw, data); err != nil {
		return nil, fmt.Errorf("render card %q: %w", name, err)
	}
	if !json.Valid(buf.Bytes()) {
		return nil, fmt.Errorf("card %q rendered invalid JSON", name)
	}

	return &activity.Attachment{
		ContentType: AdaptiveCardContentType,
		Content:     json.RawMessage(buf.Bytes()),
	}, nil
}

// Attachment renders the named card with no data, for static cards.
func (l *Loader) Attachment(name string) (*activity.Attachment, error) {
	return l.Render(name, nil)
}
