// Package upload defines how file parts are turned into model-ready content.
package upload

import "context"

// Content is one inline element produced from a file reference.
type Content struct {
	MediaType string
	// Text is set for text-like media.
	Text string
	// DataURL is set for images and other binary media the model can view.
	DataURL string
}

// IsImage reports whether the content should be sent as an image part.
func (c Content) IsImage() bool {
	return c.DataURL != ""
}

// Resolver turns an upload reference into inline content.
type Resolver interface {
	Resolve(ctx context.Context, mediaType, url string) ([]Content, error)
}
