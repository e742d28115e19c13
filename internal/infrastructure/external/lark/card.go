package lark

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/refund-approval/internal/application/port"
)

// payloadKey is the button value field that carries a control's payload
const payloadKey = "payload"

// buildCard renders status text and controls as an interactive card. The
// text sits alone in the first element so it can be read back verbatim.
func buildCard(text string, controls []port.Control) map[string]interface{} {
	elements := []interface{}{
		map[string]interface{}{
			"tag": "div",
			"text": map[string]interface{}{
				"tag":     "lark_md",
				"content": text,
			},
		},
	}

	var buttons []interface{}
	for i, c := range controls {
		if c.Hint != "" {
			elements = append(elements, map[string]interface{}{
				"tag": "note",
				"elements": []map[string]interface{}{
					{"tag": "plain_text", "content": c.Hint},
				},
			})
		}
		if len(c.Inputs) > 0 {
			elements = append(elements, buildForm(i, c))
			continue
		}
		buttons = append(buttons, buildButton(c, ""))
	}

	if len(buttons) > 0 {
		elements = append(elements, map[string]interface{}{
			"tag":     "action",
			"actions": buttons,
		})
	}

	return map[string]interface{}{
		"config": map[string]interface{}{
			"wide_screen_mode": true,
			"update_multi":     true,
		},
		"elements": elements,
	}
}

func buildButton(c port.Control, actionType string) map[string]interface{} {
	button := map[string]interface{}{
		"tag":  "button",
		"name": c.ActionID,
		"text": map[string]interface{}{
			"tag":     "plain_text",
			"content": c.Label,
		},
		"type":  buttonType(c.Style),
		"value": map[string]interface{}{payloadKey: c.Payload},
	}
	if actionType != "" {
		button["action_type"] = actionType
	}
	return button
}

// buildForm wraps a control with inputs in a form so the typed values are
// submitted together with the button
func buildForm(index int, c port.Control) map[string]interface{} {
	var fields []interface{}
	for _, in := range c.Inputs {
		fields = append(fields, map[string]interface{}{
			"tag":  "input",
			"name": in.Name,
			"label": map[string]interface{}{
				"tag":     "plain_text",
				"content": in.Label,
			},
			"placeholder": map[string]interface{}{
				"tag":     "plain_text",
				"content": in.Placeholder,
			},
		})
	}
	fields = append(fields, buildButton(c, "form_submit"))

	return map[string]interface{}{
		"tag":      "form",
		"name":     fmt.Sprintf("form_%d_%s", index, c.ActionID),
		"elements": fields,
	}
}

func buttonType(style port.ControlStyle) string {
	switch style {
	case port.StylePrimary:
		return "primary"
	case port.StyleDanger:
		return "danger"
	}
	return "default"
}

// marshalCard returns the card as the JSON string the IM API expects
func marshalCard(text string, controls []port.Control) (string, error) {
	b, err := json.Marshal(buildCard(text, controls))
	if err != nil {
		return "", fmt.Errorf("marshal card: %w", err)
	}
	return string(b), nil
}

// extractText recovers the status text from message content. It accepts the
// card as posted and the simplified form the message read API returns, where
// every paragraph is a list of text and mention nodes.
func extractText(content string) (string, error) {
	var raw struct {
		Elements []json.RawMessage `json:"elements"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return "", fmt.Errorf("parse message content: %w", err)
	}
	if len(raw.Elements) == 0 {
		return "", fmt.Errorf("message content has no elements")
	}

	var div struct {
		Tag  string `json:"tag"`
		Text struct {
			Content string `json:"content"`
		} `json:"text"`
	}
	if err := json.Unmarshal(raw.Elements[0], &div); err == nil && div.Tag == "div" {
		return div.Text.Content, nil
	}

	var lines []string
	for _, el := range raw.Elements {
		var nodes []struct {
			Tag    string `json:"tag"`
			Text   string `json:"text"`
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(el, &nodes); err != nil {
			// buttons and notes come back as objects; the text paragraphs
			// always precede them
			break
		}
		var b strings.Builder
		for _, n := range nodes {
			switch n.Tag {
			case "text":
				b.WriteString(n.Text)
			case "at":
				fmt.Fprintf(&b, `<at user_id="%s"></at>`, n.UserID)
			}
		}
		lines = append(lines, b.String())
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("message content has no text")
	}
	return strings.Join(lines, "\n"), nil
}
