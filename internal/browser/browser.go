package browser

import (
	"context"
	"errors"
	"time"
)

var ErrSessionClosed = errors.New("browsing session closed")

// Launcher creates browsing sessions. Each scraper owns exactly one session
// for the duration of a run.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

type Session interface {
	NewPage() (Page, error)
	Close() error
}

// Page is the narrow slice of a browser tab the scrapers rely on.
type Page interface {
	Goto(url string, timeout time.Duration) error
	// Exists reports whether at least one element matches selector.
	Exists(selector string) (bool, error)
	// Attributes returns attr of every element matching selector, skipping empty values.
	Attributes(selector, attr string) ([]string, error)
	Content() (string, error)
	Close() error
}
