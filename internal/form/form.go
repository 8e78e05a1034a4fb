// Package form locates and drives the fields of the check-in page. The page
// markup is not under our control, so every locator is text-based and comes
// from configuration.
package form

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const pollInterval = 500 * time.Millisecond

// FillByPlaceholder types value into the input or textarea carrying the
// given placeholder text.
func FillByPlaceholder(ctx context.Context, page *rod.Page, placeholder, value string) error {
	xpath := fmt.Sprintf("//input[@placeholder=%s] | //textarea[@placeholder=%s]",
		xpathLiteral(placeholder), xpathLiteral(placeholder))
	el, err := page.Context(ctx).ElementX(xpath)
	if err != nil {
		return fmt.Errorf("field with placeholder %q not found: %w", placeholder, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill field %q: %w", placeholder, err)
	}
	return nil
}

// FillFollowingInput types value into the first input with the given
// placeholder that follows an element containing labelText in document
// order. This disambiguates repeated placeholders like a generic
// "enter content" box.
func FillFollowingInput(ctx context.Context, page *rod.Page, labelText, placeholder, value string) error {
	xpath := fmt.Sprintf("//*[contains(text(),%s)]/following::input[@placeholder=%s][1]",
		xpathLiteral(labelText), xpathLiteral(placeholder))
	el, err := page.Context(ctx).ElementX(xpath)
	if err != nil {
		return fmt.Errorf("input after label %q not found: %w", labelText, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill input after label %q: %w", labelText, err)
	}
	return nil
}

// ClickNthText clicks the n-th (zero-based) span whose text matches exactly.
// Option rows on the form repeat the same caption, one per question; when
// fewer matches exist than n expects, the first match is used.
func ClickNthText(ctx context.Context, page *rod.Page, text string, n int) error {
	xpath := fmt.Sprintf("//span[normalize-space(text())=%s]", xpathLiteral(text))
	els, err := page.Context(ctx).ElementsX(xpath)
	if err != nil {
		return fmt.Errorf("find options %q: %w", text, err)
	}
	if len(els) == 0 {
		return fmt.Errorf("no option with text %q", text)
	}

	idx := n
	if idx >= len(els) {
		idx = 0
	}
	el := els[idx]
	_ = el.ScrollIntoView()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click option %q[%d]: %w", text, idx, err)
	}
	return nil
}

// clickRetries bounds how often a matched element is clicked before the
// next candidate is tried. Overlays occasionally swallow the first click.
const clickRetries = 2

// ClickAnyText clicks the first clickable element containing any of the
// given texts, trying them in order.
func ClickAnyText(ctx context.Context, page *rod.Page, texts []string) error {
	var lastErr error
	for _, text := range texts {
		xpath := fmt.Sprintf(
			"//button[contains(.,%s)] | //span[contains(text(),%s)] | //div[contains(text(),%s)]",
			xpathLiteral(text), xpathLiteral(text), xpathLiteral(text))
		els, err := page.Context(ctx).ElementsX(xpath)
		if err != nil || len(els) == 0 {
			continue
		}

		el := els[0]
		_ = el.ScrollIntoView()
		for try := 0; try < clickRetries; try++ {
			err := el.Click(proto.InputMouseButtonLeft, 1)
			if err == nil {
				return nil
			}
			lastErr = fmt.Errorf("click %q: %w", text, err)
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("no clickable element matching any of %v", texts)
}

// WaitText polls the page until its HTML contains text or the timeout
// elapses.
func WaitText(ctx context.Context, page *rod.Page, text string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		html, err := page.Context(ctx).HTML()
		if err == nil && strings.Contains(html, text) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("text %q did not appear within %s", text, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// PageContainsAny reports whether html contains any of the given texts.
func PageContainsAny(html string, texts []string) bool {
	for _, text := range texts {
		if text != "" && strings.Contains(html, text) {
			return true
		}
	}
	return false
}

// xpathLiteral quotes s for embedding in an XPath expression. Strings with
// both quote kinds need concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}
