// Package protocol defines the JSON messages exchanged over the page
// collection socket.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
)

// ActionType is the discriminator of an inbound envelope.
type ActionType string

const (
	JOIN   ActionType = "join"   // open a session
	APPEND ActionType = "append" // stage one page
	DELETE ActionType = "delete" // drop the page at an index
	FORM   ActionType = "form"   // assemble, upload and close
)

// ActionTypeMap maps every known action to its log label.
var ActionTypeMap = map[ActionType]string{
	JOIN:   "JOIN",
	APPEND: "APPEND",
	DELETE: "DELETE",
	FORM:   "FORM",
}

func (actionType ActionType) String() string {
	if s, ok := ActionTypeMap[actionType]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%q)", string(actionType))
}

func (actionType ActionType) Known() bool {
	_, ok := ActionTypeMap[actionType]
	return ok
}

// Envelope is one inbound frame.
type Envelope struct {
	Type ActionType      `json:"someType"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PreviewMessage carries the JPEG thumbnail; []byte marshals as base64.
type PreviewMessage struct {
	PreviewBase64 []byte `json:"previewBase64"`
}

const StatusDeleteOK = "deleteIndexThumbnail"

type DeleteAckMessage struct {
	Status string `json:"status"`
	Index  int    `json:"index"`
}

func NewDeleteAck(index int) DeleteAckMessage {
	return DeleteAckMessage{Status: StatusDeleteOK, Index: index}
}

// ParseEnvelope decodes a frame and validates the discriminator.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fault.Wrap(fault.KindProtocol, "parse envelope", err)
	}
	if !envelope.Type.Known() {
		return nil, fault.New(fault.KindProtocol, "parse envelope", "unsupported action %s", envelope.Type)
	}
	return &envelope, nil
}

func (e *Envelope) hasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// StringData returns the payload of append and form.
func (e *Envelope) StringData() (string, error) {
	if !e.hasData() {
		return "", fault.New(fault.KindProtocol, e.Type.String(), "missing data")
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fault.New(fault.KindProtocol, e.Type.String(), "data must be a string: %v", err)
	}
	return s, nil
}

// IndexData returns the payload of delete. A JSON number or a numeric
// string is accepted; floats must be integral (1.0 is 1, 1.5 is rejected).
func (e *Envelope) IndexData() (int, error) {
	if !e.hasData() {
		return 0, fault.New(fault.KindProtocol, e.Type.String(), "missing data")
	}

	var number json.Number
	decoder := json.NewDecoder(bytes.NewReader(e.Data))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return 0, fault.Wrap(fault.KindProtocol, e.Type.String(), err)
	}
	switch v := value.(type) {
	case json.Number:
		number = v
	case string:
		number = json.Number(strings.TrimSpace(v))
	default:
		return 0, fault.New(fault.KindProtocol, e.Type.String(), "data must be an integer, got %T", value)
	}

	if index, err := strconv.Atoi(number.String()); err == nil {
		return index, nil
	}
	f, err := strconv.ParseFloat(number.String(), 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fault.New(fault.KindProtocol, e.Type.String(), "data must be an integer, got %q", number.String())
	}
	return int(f), nil
}
