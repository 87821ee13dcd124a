package browser

import (
	"strings"
	"testing"
)

func TestExtractTextConvertsMarkup(t *testing.T) {
	got := ExtractText(`<div><p>Hello <strong>world</strong></p><p>second line</p></div>`)
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "world") {
		t.Errorf("lost content: %q", got)
	}
	if !strings.Contains(got, "second line") {
		t.Errorf("lost second paragraph: %q", got)
	}
}

func TestExtractTextStripsScripts(t *testing.T) {
	got := ExtractText(`<div><script>alert(1)</script><p>visible</p></div>`)
	if strings.Contains(got, "alert") {
		t.Errorf("script content leaked: %q", got)
	}
	if !strings.Contains(got, "visible") {
		t.Errorf("lost visible text: %q", got)
	}
}

func TestExtractTextEmptyInput(t *testing.T) {
	if got := ExtractText("   "); got != "" {
		t.Errorf("ExtractText(blank) = %q, want empty", got)
	}
}

func TestChatURLModelOverride(t *testing.T) {
	if got := chatURL("https://chatgpt.com/", ""); got != "https://chatgpt.com/" {
		t.Errorf("no model: %q", got)
	}
	if got := chatURL("https://chatgpt.com/", "gpt-4o"); got != "https://chatgpt.com/?model=gpt-4o" {
		t.Errorf("with model: %q", got)
	}
	if got := chatURL("https://chatgpt.com/?x=1", "gpt-4o"); got != "https://chatgpt.com/?x=1&model=gpt-4o" {
		t.Errorf("existing query: %q", got)
	}
}
