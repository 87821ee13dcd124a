package reconstruct

import "strings"

// finalText assembles the display text. Priority: externally extracted text,
// then the concatenated stream fragments with internal markers stripped,
// then the flattened last assistant message.
func finalText(extracted string, fragments []string, assistant map[string]any) string {
	if strings.TrimSpace(extracted) != "" {
		return extracted
	}

	joined := stripPrivateUse(strings.Join(fragments, ""))
	if strings.TrimSpace(joined) != "" {
		return joined
	}

	return flattenMessageText(assistant)
}

// stripPrivateUse removes BMP private-use-area runes, which the stream uses
// as internal citation delimiters.
func stripPrivateUse(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0xE000 && r <= 0xF8FF {
			return -1
		}
		return r
	}, s)
}

// flattenMessageText pulls the string parts out of a message's content.
func flattenMessageText(msg map[string]any) string {
	if msg == nil {
		return ""
	}
	content, ok := msg["content"].(map[string]any)
	if !ok {
		return ""
	}
	parts, ok := content["parts"].([]any)
	if !ok {
		return ""
	}
	var texts []string
	for _, p := range parts {
		if s, ok := p.(string); ok && s != "" {
			texts = append(texts, s)
		}
	}
	return strings.Join(texts, "\n")
}

// imageBehavior reports inline image content in the assistant message.
func imageBehavior(msg map[string]any) ImageBehavior {
	if msg == nil {
		return ImageBehavior{}
	}
	content, ok := msg["content"].(map[string]any)
	if !ok {
		return ImageBehavior{}
	}
	parts, ok := content["parts"].([]any)
	if !ok {
		return ImageBehavior{}
	}
	for _, p := range parts {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if ct, _ := m["content_type"].(string); strings.Contains(ct, "image") {
			return ImageBehavior{Present: true, Raw: m}
		}
	}
	return ImageBehavior{}
}
