package ui

import (
	"context"
	"sync"
	"time"

	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"mchat/chat"
	"mchat/store"
	"mchat/transport"
	"mchat/typing"
)

type Options struct {
	// ServerLabel is shown in the connection panel.
	ServerLabel   string
	TypingTimeout time.Duration
	DialTimeout   time.Duration
	Logger        zerolog.Logger
}

// App is the main application
type App struct {
	app    *tview.Application
	pages  *tview.Pages
	client *chat.Client
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	// Touched only on the tview event goroutine.
	typing       *typing.Session
	convIDs      []string
	renderedMsgs int

	errMu   sync.Mutex
	lastErr string

	redraw chan struct{}
	done   chan struct{}

	convList       *tview.List
	chatView       *tview.TextView
	typingView     *tview.TextView
	messageInput   *tview.InputField
	connectionView *tview.TextView
	statusBar      *tview.TextView
}

// NewApp creates a new application instance
func NewApp(client *chat.Client, opts Options) *App {
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = typing.DefaultTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	return &App{
		client: client,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "ui").Logger(),
		now:    time.Now,
		redraw: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Run builds the screen, connects in the background and blocks until the
// user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.app = tview.NewApplication()
	a.pages = tview.NewPages()
	a.pages.AddPage("main", a.createMainPage(), true, true)
	a.render()

	unsubscribe := a.client.Store().Subscribe(func(_ store.State) { a.requestRender() })
	a.client.OnStateChange(func(_ transport.ConnState) { a.requestRender() })

	go a.renderLoop()
	go func() {
		select {
		case <-ctx.Done():
			a.app.Stop()
		case <-a.done:
		}
	}()
	go a.connect(ctx)

	err := a.app.SetRoot(a.pages, true).EnableMouse(false).SetFocus(a.convList).Run()

	close(a.done)
	unsubscribe()
	if a.typing != nil {
		a.typing.Close()
	}
	return err
}

// requestRender schedules a redraw; bursts of requests collapse into one.
func (a *App) requestRender() {
	select {
	case a.redraw <- struct{}{}:
	default:
	}
}

// renderLoop redraws on request and once a second so relative times and
// last-seen labels stay current.
func (a *App) renderLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-a.redraw:
		case <-ticker.C:
		}
		a.app.QueueUpdateDraw(a.render)
	}
}

func (a *App) setError(msg string) {
	a.errMu.Lock()
	a.lastErr = msg
	a.errMu.Unlock()
	a.requestRender()
}

func (a *App) currentError() string {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.lastErr
}

// quit exits the application
func (a *App) quit() {
	a.app.Stop()
}

func newStatusBar(text string) *tview.TextView {
	bar := tview.NewTextView()
	bar.SetBackgroundColor(ColorSelected)
	bar.SetTextColor(ColorTitle)
	bar.SetTextAlign(tview.AlignCenter)
	bar.SetText(text)
	return bar
}

func scroll(view *tview.TextView, delta int) {
	row, col := view.GetScrollOffset()
	view.ScrollTo(row+delta, col)
}

func typingOptions(opts Options) []typing.Option {
	return []typing.Option{typing.WithTimeout(opts.TypingTimeout)}
}
