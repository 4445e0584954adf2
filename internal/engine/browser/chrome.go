package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const responseBuffer = 32

// blockedWhenNoImages are the tile and photo hosts skipped when no images are scraped.
var blockedWhenNoImages = []string{"*/maps/vt/*", "*/earth/BulkMetadata/*", "*googleusercontent.com*"}

// Options configures the Chrome instance.
type Options struct {
	Headless    bool   `yaml:"headless" mapstructure:"headless"`
	ExecPath    string `yaml:"exec_path" mapstructure:"exec_path"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	ProxyServer string `yaml:"proxy" mapstructure:"proxy"`
	Language    string `yaml:"-" mapstructure:"-"`
	BlockImages bool   `yaml:"-" mapstructure:"-"`
}

// Chrome drives a local Chrome through the DevTools protocol.
type Chrome struct {
	opts          Options
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	log           *zap.Logger
}

// NewChrome launches Chrome. The process lives until Close.
func NewChrome(ctx context.Context, opts Options) (*Chrome, error) {
	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.WindowSize(800, 800),
	)
	if opts.Language != "" {
		flags = append(flags, chromedp.Flag("lang", opts.Language))
	}
	if opts.UserAgent != "" {
		flags = append(flags, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		flags = append(flags, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.ProxyServer != "" {
		flags = append(flags, chromedp.ProxyServer(opts.ProxyServer))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, flags...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	// first Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, eris.Wrap(err, "starting chrome")
	}

	return &Chrome{
		opts:          opts,
		allocCtx:      allocCtx,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		log:           zap.L().With(zap.String("component", "browser")),
	}, nil
}

// NewPage opens a tab with network events enabled.
func (c *Chrome) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(c.browserCtx)

	actions := []chromedp.Action{
		network.Enable(),
		chromedp.EmulateViewport(800, 800),
	}
	if c.opts.BlockImages {
		actions = append(actions, network.SetBlockedURLS(blockedWhenNoImages))
	}

	p := &chromePage{ctx: tabCtx, cancel: cancel, log: c.log}
	if err := p.run(ctx, 0, actions...); err != nil {
		cancel()
		return nil, eris.Wrap(err, "opening tab")
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)
	return p, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() error {
	c.cancelBrowser()
	c.cancelAlloc()
	return nil
}

type subscription struct {
	match func(string) bool
	ch    chan Response
	done  chan struct{}
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	mu      sync.Mutex
	subs    map[*subscription]struct{}
	pending map[network.RequestID]string
}

// run executes actions on the tab, bounded by ctx and an optional timeout.
// Cancelling a child of the tab context aborts the actions but keeps the tab.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(p.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(p.ctx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrTimeout
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, 0, chromedp.Navigate(url))
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, 0, chromedp.Location(&u))
	return u, err
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, 0, chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (p *chromePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.BySearch))
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, 0, chromedp.Click(selector, chromedp.BySearch, chromedp.NodeVisible))
}

func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx, 0, chromedp.SendKeys(selector, text, chromedp.BySearch))
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out any) error {
	return p.run(ctx, 0, chromedp.Evaluate(expression, out, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
}

func (p *chromePage) Responses(match func(string) bool) (<-chan Response, func()) {
	sub := &subscription{
		match: match,
		ch:    make(chan Response, responseBuffer),
		done:  make(chan struct{}),
	}
	p.mu.Lock()
	if p.subs == nil {
		p.subs = make(map[*subscription]struct{})
	}
	p.subs[sub] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, sub)
			p.mu.Unlock()
			close(sub.done)
		})
	}
	return sub.ch, stop
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

func (p *chromePage) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if !p.wanted(e.Response.URL) {
			return
		}
		p.mu.Lock()
		if p.pending == nil {
			p.pending = make(map[network.RequestID]string)
		}
		p.pending[e.RequestID] = e.Response.URL
		p.mu.Unlock()

	case *network.EventLoadingFinished:
		p.mu.Lock()
		url, ok := p.pending[e.RequestID]
		delete(p.pending, e.RequestID)
		p.mu.Unlock()
		if ok {
			// event handlers must not block, fetch the body off the listener goroutine
			go p.deliver(e.RequestID, url)
		}
	}
}

func (p *chromePage) wanted(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub := range p.subs {
		if sub.match(url) {
			return true
		}
	}
	return false
}

func (p *chromePage) deliver(id network.RequestID, url string) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(p.ctx, c.Target))
	if err != nil {
		p.log.Debug("reading intercepted response", zap.String("url", url), zap.Error(err))
		return
	}

	p.mu.Lock()
	var targets []*subscription
	for sub := range p.subs {
		if sub.match(url) {
			targets = append(targets, sub)
		}
	}
	p.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- Response{URL: url, Body: body}:
		case <-sub.done:
		case <-p.ctx.Done():
		}
	}
}
