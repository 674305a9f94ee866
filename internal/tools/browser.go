package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

const maxPageContent = 50000

type browserArgs struct {
	Action      string `json:"action"`
	URL         string `json:"url"`
	Selector    string `json:"selector"`
	Text        string `json:"text"`
	WaitSeconds int    `json:"wait_seconds"`
}

// BrowserTool drives a single long-lived Chrome session. The session is
// started lazily on first use and survives across tool calls so a step can
// navigate, interact, and read in separate turns; 'close' ends it.
type BrowserTool struct {
	mu            sync.Mutex
	headless      bool
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

// NewBrowserTool creates a browser tool. Headless is the normal mode for
// unattended runs; pass false to watch the session.
func NewBrowserTool(headless bool) *BrowserTool {
	return &BrowserTool{headless: headless}
}

func (b *BrowserTool) Name() string {
	return "browser"
}

func (b *BrowserTool) Description() string {
	return "Control a browser to interact with websites. The browser session persists until you call 'close'. Actions: 'navigate', 'click', 'content', 'text', 'type', 'press', 'scroll', 'wait', 'back', 'forward', 'reload', 'screenshot', 'close'."
}

func (b *BrowserTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					"navigate", "click", "content", "text", "type", "press",
					"scroll", "wait", "back", "forward", "reload",
					"screenshot", "close",
				},
				"description": "The action to perform.",
			},
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to navigate to (required for 'navigate')",
			},
			"selector": map[string]any{
				"type":        "string",
				"description": "CSS selector for the target element (required for 'click', 'type', 'press', 'scroll', 'wait')",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "The text to type or key to press (required for 'type', 'press')",
			},
			"wait_seconds": map[string]any{
				"type":        "integer",
				"description": "Time to wait in seconds (used with 'wait')",
			},
		},
		"required": []string{"action"},
	}
}

func (b *BrowserTool) session() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return b.browserCtx, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	if err := chromedp.Run(b.browserCtx); err != nil {
		b.cleanup()
		return nil, err
	}
	return b.browserCtx, nil
}

func (b *BrowserTool) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

func (b *BrowserTool) Execute(ctx context.Context, input string) (string, error) {
	var args browserArgs
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	if args.Action == "close" {
		b.mu.Lock()
		b.cleanup()
		b.mu.Unlock()
		return "Successfully closed the browser.", nil
	}

	sessionCtx, err := b.session()
	if err != nil {
		return "", fmt.Errorf("failed to initialize browser: %v", err)
	}

	actionCtx, cancel := context.WithTimeout(sessionCtx, 60*time.Second)
	defer cancel()

	result, err := b.dispatch(actionCtx, args)
	if err != nil {
		return fmt.Sprintf("Browser action failed: %v", err), nil
	}
	return result, nil
}

func (b *BrowserTool) dispatch(ctx context.Context, args browserArgs) (string, error) {
	switch args.Action {
	case "navigate":
		if args.URL == "" {
			return "Error: url is required for 'navigate'", nil
		}
		if err := chromedp.Run(ctx, chromedp.Navigate(args.URL)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Successfully navigated to %s", args.URL), nil

	case "content":
		return b.pageHTML(ctx)

	case "text":
		return b.pageText(ctx, args.Selector)

	case "click":
		if args.Selector == "" {
			return "Error: selector required", nil
		}
		if err := chromedp.Run(ctx, chromedp.Click(args.Selector, chromedp.ByQuery)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Clicked %s", args.Selector), nil

	case "type":
		if args.Selector == "" || args.Text == "" {
			return "Error: selector and text required", nil
		}
		if err := chromedp.Run(ctx, chromedp.SendKeys(args.Selector, args.Text, chromedp.ByQuery)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Typed text in %s", args.Selector), nil

	case "press":
		if args.Text == "" {
			return "Error: text (key) required", nil
		}
		if err := chromedp.Run(ctx, chromedp.KeyEvent(args.Text)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Pressed key: %s", args.Text), nil

	case "scroll":
		if args.Selector != "" {
			if err := chromedp.Run(ctx, chromedp.ScrollIntoView(args.Selector, chromedp.ByQuery)); err != nil {
				return "", err
			}
			return fmt.Sprintf("Scrolled to %s", args.Selector), nil
		}
		if err := chromedp.Run(ctx, chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil)); err != nil {
			return "", err
		}
		return "Scrolled to bottom", nil

	case "wait":
		return b.wait(ctx, args)

	case "back":
		if err := chromedp.Run(ctx, chromedp.NavigateBack()); err != nil {
			return "", err
		}
		return "Navigated back", nil

	case "forward":
		if err := chromedp.Run(ctx, chromedp.NavigateForward()); err != nil {
			return "", err
		}
		return "Navigated forward", nil

	case "reload":
		if err := chromedp.Run(ctx, chromedp.Reload()); err != nil {
			return "", err
		}
		return "Page reloaded", nil

	case "screenshot":
		return b.screenshot(ctx)

	default:
		return "Invalid action", nil
	}
}

func (b *BrowserTool) pageHTML(ctx context.Context) (string, error) {
	var html string
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", err
	}
	if len(html) > maxPageContent {
		html = html[:maxPageContent] + "\n... (truncated)"
	}
	return html, nil
}

// pageText extracts innerText, which is far cheaper to feed back to the
// model than raw HTML. An empty selector reads the whole body.
func (b *BrowserTool) pageText(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		selector = "body"
	}
	var text string
	if err := chromedp.Run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	if len(text) > maxPageContent {
		text = text[:maxPageContent] + "\n... (truncated)"
	}
	return text, nil
}

func (b *BrowserTool) wait(ctx context.Context, args browserArgs) (string, error) {
	if args.Selector != "" {
		if err := chromedp.Run(ctx, chromedp.WaitVisible(args.Selector, chromedp.ByQuery)); err != nil {
			return "", err
		}
		return fmt.Sprintf("Finished waiting for %s", args.Selector), nil
	}
	if args.WaitSeconds > 0 {
		select {
		case <-time.After(time.Duration(args.WaitSeconds) * time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return fmt.Sprintf("Waited for %d seconds", args.WaitSeconds), nil
	}
	return "Nothing to wait for", nil
}

func (b *BrowserTool) screenshot(ctx context.Context) (string, error) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", err
	}
	if err := os.MkdirAll("screenshots", 0755); err != nil {
		return "", err
	}
	path := filepath.Join("screenshots", fmt.Sprintf("screenshot_%d.png", time.Now().Unix()))
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", err
	}
	absPath, _ := filepath.Abs(path)
	return fmt.Sprintf("Screenshot saved to %s", absPath), nil
}
