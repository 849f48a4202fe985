package main

import (
	"encoding/json"
)

// renderFields are the caller keys allowed into the upstream payload besides
// "html". Everything else is dropped.
var renderFields = []string{
	"selector",
	"full_screen",
	"render_when_ready",
	"color_scheme",
	"timezone",
	"block_consent_banners",
	"viewport_width",
	"viewport_height",
	"device_scale",
	"css",
	"url",
	"console_mode",
	"ms_delay",
	"google_fonts",
}

var emptyJSONString = json.RawMessage(`""`)

// RenderRequest is the JSON payload sent to the render endpoint. Values of
// ExtraFields are passed through exactly as the caller encoded them.
type RenderRequest struct {
	HTML        string
	ExtraFields map[string]json.RawMessage
}

// MarshalJSON flattens the request into a single JSON object.
func (r RenderRequest) MarshalJSON() ([]byte, error) {
	payload := make(map[string]json.RawMessage, len(r.ExtraFields)+1)
	for key, value := range r.ExtraFields {
		payload[key] = value
	}
	html, err := json.Marshal(r.HTML)
	if err != nil {
		return nil, err
	}
	payload["html"] = html
	return json.Marshal(payload)
}

// BuildRenderRequest validates the caller body and keeps html plus the
// allow-listed keys. With FieldDefaultsEmpty, absent allow-listed keys are
// sent as "".
func BuildRenderRequest(body map[string]json.RawMessage, defaults FieldDefaults) (RenderRequest, error) {
	raw, ok := body["html"]
	if !ok {
		return RenderRequest{}, NewValidationError("Missing 'html' field")
	}
	var html string
	if err := json.Unmarshal(raw, &html); err != nil {
		return RenderRequest{}, NewValidationError("'html' must be a string")
	}
	if html == "" {
		return RenderRequest{}, NewValidationError("Missing 'html' field")
	}

	extra := make(map[string]json.RawMessage)
	for _, key := range renderFields {
		if value, ok := body[key]; ok {
			extra[key] = value
		} else if defaults == FieldDefaultsEmpty {
			extra[key] = emptyJSONString
		}
	}

	return RenderRequest{HTML: html, ExtraFields: extra}, nil
}
