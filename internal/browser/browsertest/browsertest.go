// Package browsertest provides an in-memory browser.Launcher serving HTML
// fixtures, for exercising scrapers without a real browser.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/seed-price-scraper/internal/browser"
)

// Fixture describes what a URL returns.
type Fixture struct {
	HTML string
	// FailTimes makes the first N navigations to the URL fail.
	FailTimes int
	// Err is returned by every navigation when set.
	Err error
}

// Launcher serves fixtures keyed by absolute URL. Unknown URLs fail navigation.
type Launcher struct {
	LaunchErr error

	mu       sync.Mutex
	fixtures map[string]*Fixture
	gotos    map[string]int
	launches int
	sessions []*Session
}

func NewLauncher() *Launcher {
	return &Launcher{
		fixtures: make(map[string]*Fixture),
		gotos:    make(map[string]int),
	}
}

func (l *Launcher) Serve(url string, f Fixture) *Launcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	fx := f
	l.fixtures[url] = &fx
	return l
}

func (l *Launcher) ServeHTML(url, html string) *Launcher {
	return l.Serve(url, Fixture{HTML: html})
}

func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.launches++
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}

	s := &Session{launcher: l}
	l.sessions = append(l.sessions, s)
	return s, nil
}

// Gotos returns how many navigations were attempted to url.
func (l *Launcher) Gotos(url string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gotos[url]
}

func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Session, len(l.sessions))
	copy(out, l.sessions)
	return out
}

func (l *Launcher) navigate(url string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gotos[url]++
	f, ok := l.fixtures[url]
	if !ok {
		return "", fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	if f.Err != nil {
		return "", f.Err
	}
	if f.FailTimes > 0 {
		f.FailTimes--
		return "", fmt.Errorf("timeout 30000ms exceeded navigating to %s", url)
	}
	return f.HTML, nil
}

type Session struct {
	launcher *Launcher

	mu          sync.Mutex
	closed      bool
	closeCalls  int
	openPages   int
	pagesOpened int
}

func (s *Session) NewPage() (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.ErrSessionClosed
	}
	s.openPages++
	s.pagesOpened++
	return &Page{session: s}, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	s.closed = true
	return nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// OpenPages is the number of pages created and not yet closed.
func (s *Session) OpenPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openPages
}

func (s *Session) PagesOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagesOpened
}

type Page struct {
	session *Session
	doc     *goquery.Document
	closed  bool
}

func (p *Page) Goto(url string, _ time.Duration) error {
	if p.closed {
		return fmt.Errorf("page closed")
	}
	html, err := p.session.launcher.navigate(url)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse fixture: %w", err)
	}
	p.doc = doc
	return nil
}

func (p *Page) Exists(selector string) (bool, error) {
	if p.doc == nil {
		return false, nil
	}
	return p.doc.Find(selector).Length() > 0, nil
}

func (p *Page) Attributes(selector, attr string) ([]string, error) {
	if p.doc == nil {
		return nil, nil
	}
	var values []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok && v != "" {
			values = append(values, v)
		}
	})
	return values, nil
}

func (p *Page) Content() (string, error) {
	if p.doc == nil {
		return "", nil
	}
	return p.doc.Html()
}

func (p *Page) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.session.mu.Lock()
	p.session.openPages--
	p.session.mu.Unlock()
	return nil
}
