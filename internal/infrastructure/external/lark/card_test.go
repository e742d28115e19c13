package lark

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/refund-approval/internal/application/port"
)

const statusText = "Refund request for order #1001\nRequested by: Jo Doe (jo@example.com) <at user_id=\"ou_1\"></at>\n» Workflow\n» Order decision: Canceled by <ou_9>"

func TestMarshalCard_RoundTrip(t *testing.T) {
	controls := []port.Control{
		{ActionID: "process_refund", Label: "Issue $19.00 refund", Payload: "action=process_refund|amount=1900", Style: port.StylePrimary, Hint: "95% tier, 5% fee (4+ weeks before season)"},
		{ActionID: "custom_refund_amount", Label: "Custom amount", Payload: "action=custom_refund_amount", Inputs: []port.ControlInput{{Name: "amount", Label: "Amount", Placeholder: "19.00"}}},
		{ActionID: "no_refund", Label: "No refund", Payload: "action=no_refund", Style: port.StyleDanger},
	}

	content, err := marshalCard(statusText, controls)
	require.NoError(t, err)

	text, err := extractText(content)
	require.NoError(t, err)
	assert.Equal(t, statusText, text)

	var card map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &card))
	elements := card["elements"].([]interface{})
	// text, hint note, form, action row
	require.Len(t, elements, 4)

	note := elements[1].(map[string]interface{})
	assert.Equal(t, "note", note["tag"])

	form := elements[2].(map[string]interface{})
	assert.Equal(t, "form", form["tag"])
	formFields := form["elements"].([]interface{})
	require.Len(t, formFields, 2)
	submit := formFields[1].(map[string]interface{})
	assert.Equal(t, "form_submit", submit["action_type"])

	row := elements[3].(map[string]interface{})
	buttons := row["actions"].([]interface{})
	require.Len(t, buttons, 2)
	first := buttons[0].(map[string]interface{})
	assert.Equal(t, "primary", first["type"])
	assert.Equal(t, "action=process_refund|amount=1900", first["value"].(map[string]interface{})["payload"])
	assert.Equal(t, "danger", buttons[1].(map[string]interface{})["type"])
}

func TestMarshalCard_NoControls(t *testing.T) {
	content, err := marshalCard("done", nil)
	require.NoError(t, err)

	var card map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &card))
	assert.Len(t, card["elements"], 1)
}

func TestExtractText_SimplifiedContent(t *testing.T) {
	content := `{"title":"","elements":[` +
		`[{"tag":"text","text":"Refund request for order #1001"}],` +
		`[{"tag":"text","text":"Requested by: Jo Doe (jo@example.com) "},{"tag":"at","user_id":"ou_1"}],` +
		`[{"tag":"text","text":"» Workflow"}],` +
		`{"tag":"action","actions":[]}]}`

	text, err := extractText(content)
	require.NoError(t, err)
	assert.Equal(t, "Refund request for order #1001\nRequested by: Jo Doe (jo@example.com) <at user_id=\"ou_1\"></at>\n» Workflow", text)
}

func TestExtractText_Errors(t *testing.T) {
	_, err := extractText("not json")
	assert.Error(t, err)

	_, err = extractText(`{"elements":[]}`)
	assert.Error(t, err)

	_, err = extractText(`{"elements":[{"tag":"hr"}]}`)
	assert.Error(t, err)
}
