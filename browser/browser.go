// Package browser drives a real Chrome session against the chat product:
// launch with stealth, authenticate an account, submit a prompt and capture
// the raw streaming frames off the wire via CDP EventSource events.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/sift/capture"
)

// Config configures the driver.
type Config struct {
	// ChatURL is the conversation page. Default: https://chatgpt.com/.
	ChatURL string

	// LoginURL is the authentication entry point.
	// Default: https://chatgpt.com/auth/login.
	LoginURL string

	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Selectors for the product UI. The defaults track the current markup;
	// override from config when the product ships a redesign.
	EmailSelector     string
	PasswordSelector  string
	PromptSelector    string
	AssistantSelector string

	// NavTimeout bounds navigation and element lookups. Default: 30s.
	NavTimeout time.Duration

	// LoginTimeout bounds the whole authentication flow. Default: 60s.
	LoginTimeout time.Duration

	// StreamTimeout bounds one prompt's streaming response. Default: 3m.
	StreamTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ChatURL == "" {
		c.ChatURL = "https://chatgpt.com/"
	}
	if c.LoginURL == "" {
		c.LoginURL = "https://chatgpt.com/auth/login"
	}
	if c.EmailSelector == "" {
		c.EmailSelector = `input[type="email"]`
	}
	if c.PasswordSelector == "" {
		c.PasswordSelector = `input[type="password"]`
	}
	if c.PromptSelector == "" {
		c.PromptSelector = `#prompt-textarea`
	}
	if c.AssistantSelector == "" {
		c.AssistantSelector = `div[data-message-author-role="assistant"]`
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 60 * time.Second
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = 3 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Driver is the rod-backed browser collaborator. Its methods block; the
// session manager always calls them from the capture worker goroutine, so
// the mutex only guards against Stop racing a slow call.
type Driver struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

// New creates a Driver. Call Start before anything else.
func New(cfg Config) *Driver {
	cfg.defaults()
	return &Driver{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance), applies the
// stealth patches and opens the working page.
func (d *Driver) Start(ctx context.Context, headless bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	log := d.cfg.Logger

	var wsURL string
	if d.cfg.RemoteURL != "" {
		wsURL = d.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		d.lnch = l
		log.Info("browser: launched local chrome", "headless", headless)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		d.cleanupLocked()
		return fmt.Errorf("browser: connect: %w", err)
	}
	d.browser = b

	page, err := stealth.Page(b)
	if err != nil {
		d.cleanupLocked()
		return fmt.Errorf("browser: create page: %w", err)
	}
	d.page = page
	return nil
}

// Authenticate navigates to the login flow and signs the account in. The
// bool is false when the product rejected the credentials; an error means
// the flow itself broke (markup change, timeout, dead browser).
func (d *Driver) Authenticate(ctx context.Context, email, password string) (bool, error) {
	page := d.currentPage()
	if page == nil {
		return false, fmt.Errorf("browser: not started")
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.LoginTimeout)
	defer cancel()
	p := page.Context(ctx)

	if err := p.Navigate(d.cfg.LoginURL); err != nil {
		return false, fmt.Errorf("browser: navigate login: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return false, fmt.Errorf("browser: login page load: %w", err)
	}

	// The flow is two-step: email first, password on the next screen.
	if err := fillAndSubmit(p, d.cfg.EmailSelector, email); err != nil {
		return false, fmt.Errorf("browser: email step: %w", err)
	}
	if err := fillAndSubmit(p, d.cfg.PasswordSelector, password); err != nil {
		return false, fmt.Errorf("browser: password step: %w", err)
	}

	// Success is the prompt box appearing; a bounced login keeps us on the
	// auth screens until the deadline.
	if _, err := p.Element(d.cfg.PromptSelector); err != nil {
		if ctx.Err() != nil {
			d.cfg.Logger.Warn("browser: login rejected", "email", email)
			return false, nil
		}
		return false, fmt.Errorf("browser: wait for prompt box: %w", err)
	}
	return true, nil
}

// Submit types the prompt, presses Enter and records every EventSource
// frame the page receives until the stream signals completion. The raw
// frames are returned untouched, one "data:" line each, alongside the
// rendered assistant text.
func (d *Driver) Submit(ctx context.Context, prompt, model string) (*capture.Submission, error) {
	page := d.currentPage()
	if page == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	navCtx, cancelNav := context.WithTimeout(ctx, d.cfg.NavTimeout)
	defer cancelNav()
	p := page.Context(navCtx)

	if err := p.Navigate(chatURL(d.cfg.ChatURL, model)); err != nil {
		return nil, fmt.Errorf("browser: navigate chat: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("browser: chat page load: %w", err)
	}

	// Attach the frame collector before submitting so the head of the
	// stream cannot be missed.
	streamCtx, cancelStream := context.WithTimeout(ctx, d.cfg.StreamTimeout)
	defer cancelStream()

	var (
		framesMu sync.Mutex
		frames   strings.Builder
	)
	wait := page.Context(streamCtx).EachEvent(func(ev *proto.NetworkEventSourceMessageReceived) bool {
		framesMu.Lock()
		frames.WriteString("data: ")
		frames.WriteString(ev.Data)
		frames.WriteString("\n")
		framesMu.Unlock()
		return strings.TrimSpace(ev.Data) == "[DONE]"
	})

	box, err := p.Element(d.cfg.PromptSelector)
	if err != nil {
		return nil, fmt.Errorf("browser: find prompt box: %w", err)
	}
	if err := box.Input(prompt); err != nil {
		return nil, fmt.Errorf("browser: type prompt: %w", err)
	}

	start := time.Now()
	if err := box.Type(input.Enter); err != nil {
		return nil, fmt.Errorf("browser: submit prompt: %w", err)
	}

	wait()
	elapsed := time.Since(start).Milliseconds()

	framesMu.Lock()
	raw := frames.String()
	framesMu.Unlock()

	if raw == "" {
		return nil, fmt.Errorf("browser: no stream frames received")
	}

	extracted := d.assistantText(ctx, page)

	d.cfg.Logger.Info("browser: stream captured",
		"bytes", len(raw), "elapsed_ms", elapsed)

	return &capture.Submission{
		RawFrames:     raw,
		ExtractedText: extracted,
		ElapsedMS:     elapsed,
	}, nil
}

// Stop closes the page and Chrome. Safe to call more than once.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanupLocked()
	return nil
}

func (d *Driver) currentPage() *rod.Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page
}

func (d *Driver) cleanupLocked() {
	if d.page != nil {
		d.page.Close()
		d.page = nil
	}
	if d.browser != nil {
		d.browser.Close()
		d.browser = nil
	}
	if d.lnch != nil {
		d.lnch.Cleanup()
		d.lnch = nil
	}
}

// assistantText reads the last assistant message's HTML and extracts
// readable text from it. Extraction is best-effort: the raw frames remain
// the source of truth.
func (d *Driver) assistantText(ctx context.Context, page *rod.Page) string {
	readCtx, cancel := context.WithTimeout(ctx, d.cfg.NavTimeout)
	defer cancel()
	p := page.Context(readCtx)

	els, err := p.Elements(d.cfg.AssistantSelector)
	if err != nil || len(els) == 0 {
		d.cfg.Logger.Debug("browser: no assistant node", "error", err)
		return ""
	}
	raw, err := els[len(els)-1].HTML()
	if err != nil {
		d.cfg.Logger.Debug("browser: read assistant HTML", "error", err)
		return ""
	}
	return ExtractText(raw)
}

// fillAndSubmit waits for the field, fills it and presses Enter.
func fillAndSubmit(p *rod.Page, selector, value string) error {
	el, err := p.Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return el.Type(input.Enter)
}

// chatURL appends the model override when the product supports selecting
// it from the query string.
func chatURL(base, model string) string {
	if model == "" {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "model=" + url.QueryEscape(model)
}
