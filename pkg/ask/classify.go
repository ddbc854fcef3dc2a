package ask

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/devsecrin/askstream/pkg/types"
)

// doneSentinel is the literal payload that ends a stream.
const doneSentinel = "[DONE]"

// Verdict tells the stream what to do with a classified frame.
type Verdict int

const (
	VerdictSkip Verdict = iota // ignore and keep reading
	VerdictEmit                // hand the event to the consumer
	VerdictDone                // graceful end of stream
	VerdictFail                // server-reported error, stop iterating
)

// wireFrame keeps the dispatch keys raw so presence and truthiness can be
// judged the way the backend's JavaScript clients judge them.
type wireFrame struct {
	Context   json.RawMessage `json:"context"`
	Chunk     json.RawMessage `json:"chunk"`
	Done      json.RawMessage `json:"done"`
	Error     json.RawMessage `json:"error"`
	Model     json.RawMessage `json:"model"`
	Provider  json.RawMessage `json:"provider"`
	NodeTypes json.RawMessage `json:"node_types"`
}

// Classify turns one data frame into an event or a control verdict. Checks
// run in a fixed order and the first match wins, since a payload may carry
// several keys at once: [DONE], invalid JSON, context, chunk, done, error,
// anything else. Skipped frames come back with ErrMalformedFrame or
// ErrUnrecognizedShape for logging. A context frame is emitted even when
// parts of it do not decode; the error then wraps ErrMalformedFrame and
// names what was dropped.
func Classify(frame string) (Event, Verdict, error) {
	if frame == doneSentinel {
		return Event{}, VerdictDone, nil
	}

	var w wireFrame
	if err := json.Unmarshal([]byte(frame), &w); err != nil {
		return Event{}, VerdictSkip, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch {
	case truthy(w.Context):
		items, err := decodeContextItems(w.Context)
		ev := Event{Kind: KindContext, Items: items}
		ev.Metadata.Model = optionalText(w.Model)
		ev.Metadata.Provider = optionalText(w.Provider)
		if truthy(w.NodeTypes) {
			if nerr := json.Unmarshal(w.NodeTypes, &ev.Metadata.NodeTypes); nerr != nil {
				err = errors.Join(err, fmt.Errorf("node_types: %v", nerr))
			}
		}
		if err != nil {
			return ev, VerdictEmit, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return ev, VerdictEmit, nil

	case truthy(w.Chunk):
		return Event{Kind: KindAnswerChunk, Text: textValue(w.Chunk)}, VerdictEmit, nil

	case truthy(w.Done):
		return Event{}, VerdictDone, nil

	case truthy(w.Error):
		return Event{Kind: KindError, Message: errorValue(w.Error)}, VerdictFail, nil
	}

	return Event{}, VerdictSkip, ErrUnrecognizedShape
}

// decodeContextItems decodes the context array item by item, so one item
// with an odd field type does not cost the rest. An item that fails the
// strict decode is read leniently: text fields keep whatever they hold and a
// numeric string score is parsed. A context that is not an array yields no
// items.
func decodeContextItems(raw json.RawMessage) ([]types.ContextItem, error) {
	var items []types.ContextItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("context: %v", err)
	}

	var errs []error
	items = make([]types.ContextItem, 0, len(elems))
	for i, elem := range elems {
		var item types.ContextItem
		if err := json.Unmarshal(elem, &item); err == nil {
			items = append(items, item)
			continue
		}
		item, err := lenientContextItem(elem)
		if err != nil {
			errs = append(errs, fmt.Errorf("context[%d]: %v", i, err))
			continue
		}
		items = append(items, item)
	}
	return items, errors.Join(errs...)
}

func lenientContextItem(raw json.RawMessage) (types.ContextItem, error) {
	var fields struct {
		Type    json.RawMessage `json:"type"`
		Name    json.RawMessage `json:"name"`
		Content json.RawMessage `json:"content"`
		Score   json.RawMessage `json:"score"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return types.ContextItem{}, err
	}
	item := types.ContextItem{
		Type:    optionalText(fields.Type),
		Name:    optionalText(fields.Name),
		Content: optionalText(fields.Content),
	}
	if score, ok := scoreValue(fields.Score); ok {
		item.Score = &score
	}
	return item, nil
}

// scoreValue accepts a JSON number or a string holding one.
func scoreValue(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

// truthy reports whether a raw JSON value is present and truthy: null,
// false, 0 and "" are not; objects and arrays always are.
func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}
	switch v[0] {
	case 'n', 'f':
		return false
	case 't', '{', '[':
		return true
	case '"':
		return len(v) > 2
	default:
		f, err := strconv.ParseFloat(string(v), 64)
		return err == nil && f != 0
	}
}

// textValue returns a JSON string's contents, or the raw JSON for other values.
func textValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func optionalText(raw json.RawMessage) string {
	if !truthy(raw) {
		return ""
	}
	return textValue(raw)
}

// errorValue accepts both "error": "msg" and "error": {"message": "msg"}.
func errorValue(raw json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return textValue(raw)
}
