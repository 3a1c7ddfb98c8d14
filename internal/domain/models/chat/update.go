package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// UpdateType discriminates the variants of the message update protocol.
// The wire value is stored verbatim in the persisted update log and in the
// stream sent to the browser, so these constants are part of the client
// contract and must not be renamed.
type UpdateType string

const (
	UpdateTypeStatus      UpdateType = "status"
	UpdateTypeTitle       UpdateType = "title"
	UpdateTypeStream      UpdateType = "stream"
	UpdateTypeFinalAnswer UpdateType = "finalAnswer"
	UpdateTypeFile        UpdateType = "file"
	UpdateTypeTool        UpdateType = "tool"
	UpdateTypeWebSearch   UpdateType = "webSearch"
	UpdateTypeReasoning   UpdateType = "reasoning"
)

// GenerationStatus is the payload of a status update.
type GenerationStatus string

const (
	StatusStarted   GenerationStatus = "started"
	StatusPending   GenerationStatus = "pending"
	StatusFinished  GenerationStatus = "finished"
	StatusError     GenerationStatus = "error"
	StatusKeepAlive GenerationStatus = "keepAlive"
)

// ToolUpdateType is the subtype of a tool update.
type ToolUpdateType string

const (
	ToolUpdateCall     ToolUpdateType = "call"
	ToolUpdateResult   ToolUpdateType = "result"
	ToolUpdateProgress ToolUpdateType = "progress"
	ToolUpdateError    ToolUpdateType = "error"
)

// WebSearchUpdateType is the subtype of a web search update.
type WebSearchUpdateType string

const (
	WebSearchUpdateProgress WebSearchUpdateType = "update"
	WebSearchUpdateError    WebSearchUpdateType = "error"
	WebSearchUpdateSources  WebSearchUpdateType = "sources"
	WebSearchUpdateFinished WebSearchUpdateType = "finished"
)

// ReasoningUpdateType is the subtype of a reasoning update.
type ReasoningUpdateType string

const (
	ReasoningUpdateStream ReasoningUpdateType = "stream"
	ReasoningUpdateStatus ReasoningUpdateType = "status"
)

// MessageUpdate is one event in an assistant message's update log.
// Every event that can occur during generation is a variant of this
// interface; the sequence of updates for a message is append-only and the
// terminal state of a message is derived from it (see generation.go).
type MessageUpdate interface {
	UpdateType() UpdateType
}

// StreamUpdate carries one incremental text token.
type StreamUpdate struct {
	Token string `json:"token"`
}

// FinalAnswerUpdate carries the full answer text and marks the turn
// complete. Regardless of the Interrupted field, a FinalAnswer is always
// terminal.
type FinalAnswerUpdate struct {
	Text        string            `json:"text"`
	Interrupted bool              `json:"interrupted"`
	WebSources  []WebSearchSource `json:"webSources,omitempty"`
}

// TitleUpdate carries a generated conversation title. It may arrive after
// the FinalAnswer since title generation runs concurrently.
type TitleUpdate struct {
	Title string `json:"title"`
}

// StatusUpdate signals a generation state transition. KeepAlive status
// updates are emitted to hold the HTTP stream open and are never persisted.
type StatusUpdate struct {
	Status     GenerationStatus `json:"status"`
	Message    string           `json:"message,omitempty"`
	StatusCode int              `json:"statusCode,omitempty"`
}

// ToolCall identifies an upstream tool invocation request.
type ToolCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// ToolUpdate reports progress of one tool invocation, correlated by UUID.
type ToolUpdate struct {
	Subtype ToolUpdateType `json:"subtype"`
	UUID    string         `json:"uuid"`
	Call    *ToolCall      `json:"call,omitempty"`
	Result  any            `json:"result,omitempty"`
	Message string         `json:"message,omitempty"`
}

// WebSearchUpdate reports progress of the web search phase.
type WebSearchUpdate struct {
	Subtype WebSearchUpdateType `json:"subtype"`
	Message string              `json:"message,omitempty"`
	Args    []string            `json:"args,omitempty"`
	Sources []WebSearchSource   `json:"sources,omitempty"`
}

// FileUpdate attaches a generated file to the message by content hash.
type FileUpdate struct {
	Name string `json:"name"`
	Sha  string `json:"sha"`
	Mime string `json:"mime"`
}

// ReasoningUpdate carries reasoning-mode tokens or status lines for models
// that think before answering.
type ReasoningUpdate struct {
	Subtype ReasoningUpdateType `json:"subtype"`
	Token   string              `json:"token,omitempty"`
	Status  string              `json:"status,omitempty"`
}

func (StreamUpdate) UpdateType() UpdateType      { return UpdateTypeStream }
func (FinalAnswerUpdate) UpdateType() UpdateType { return UpdateTypeFinalAnswer }
func (TitleUpdate) UpdateType() UpdateType       { return UpdateTypeTitle }
func (StatusUpdate) UpdateType() UpdateType      { return UpdateTypeStatus }
func (ToolUpdate) UpdateType() UpdateType        { return UpdateTypeTool }
func (WebSearchUpdate) UpdateType() UpdateType   { return UpdateTypeWebSearch }
func (FileUpdate) UpdateType() UpdateType        { return UpdateTypeFile }
func (ReasoningUpdate) UpdateType() UpdateType   { return UpdateTypeReasoning }

// marshalWithType wraps a variant with its "type" discriminator so the
// wire shape is {"type": "...", ...fields}.
func marshalWithType(t UpdateType, v any) ([]byte, error) {
	fields, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	head, err := json.Marshal(struct {
		Type UpdateType `json:"type"`
	}{t})
	if err != nil {
		return nil, err
	}
	if string(fields) == "{}" {
		return head, nil
	}
	// splice: {"type":"x"} + {...} -> {"type":"x",...}
	out := make([]byte, 0, len(head)+len(fields))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, fields[1:]...)
	return out, nil
}

func (u StreamUpdate) MarshalJSON() ([]byte, error) {
	type alias StreamUpdate
	return marshalWithType(UpdateTypeStream, alias(u))
}

func (u FinalAnswerUpdate) MarshalJSON() ([]byte, error) {
	type alias FinalAnswerUpdate
	return marshalWithType(UpdateTypeFinalAnswer, alias(u))
}

func (u TitleUpdate) MarshalJSON() ([]byte, error) {
	type alias TitleUpdate
	return marshalWithType(UpdateTypeTitle, alias(u))
}

func (u StatusUpdate) MarshalJSON() ([]byte, error) {
	type alias StatusUpdate
	return marshalWithType(UpdateTypeStatus, alias(u))
}

func (u ToolUpdate) MarshalJSON() ([]byte, error) {
	type alias ToolUpdate
	return marshalWithType(UpdateTypeTool, alias(u))
}

func (u WebSearchUpdate) MarshalJSON() ([]byte, error) {
	type alias WebSearchUpdate
	return marshalWithType(UpdateTypeWebSearch, alias(u))
}

func (u FileUpdate) MarshalJSON() ([]byte, error) {
	type alias FileUpdate
	return marshalWithType(UpdateTypeFile, alias(u))
}

func (u ReasoningUpdate) MarshalJSON() ([]byte, error) {
	type alias ReasoningUpdate
	return marshalWithType(UpdateTypeReasoning, alias(u))
}

// MalformedUpdateError reports an update whose shape is not part of the
// protocol. Callers log and drop these rather than aborting the turn.
type MalformedUpdateError struct {
	Type UpdateType
}

func (e *MalformedUpdateError) Error() string {
	return fmt.Sprintf("malformed message update: unknown type %q", e.Type)
}

// DecodeUpdate parses one JSON-encoded update into its concrete variant.
// Unknown types return a *MalformedUpdateError.
func DecodeUpdate(data []byte) (MessageUpdate, error) {
	var probe struct {
		Type UpdateType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode update envelope: %w", err)
	}

	switch probe.Type {
	case UpdateTypeStream:
		var u StreamUpdate
		return u, unmarshalVariant(data, &u)
	case UpdateTypeFinalAnswer:
		var u FinalAnswerUpdate
		return u, unmarshalVariant(data, &u)
	case UpdateTypeTitle:
		var u TitleUpdate
		return u, unmarshalVariant(data, &u)
	case UpdateTypeStatus:
		var u StatusUpdate
		return u, unmarshalVariant(data, &u)
	case UpdateTypeTool:
		var u ToolUpdate
		return u, unmarshalVariant(data, &u)
	case UpdateTypeWebSearch:
		var u WebSearchUpdate
		return u, unmarshalVariant(data, &u)
	case UpdateTypeFile:
		var u FileUpdate
		return u, unmarshalVariant(data, &u)
	case UpdateTypeReasoning:
		var u ReasoningUpdate
		return u, unmarshalVariant(data, &u)
	default:
		return nil, &MalformedUpdateError{Type: probe.Type}
	}
}

func unmarshalVariant(data []byte, dest any) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode update body: %w", err)
	}
	return nil
}

// UpdateLog is the ordered, append-only list of updates recorded on an
// assistant message. It round-trips through JSON preserving variant types.
type UpdateLog []MessageUpdate

func (l *UpdateLog) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	log := make(UpdateLog, 0, len(raws))
	for _, raw := range raws {
		u, err := DecodeUpdate(raw)
		if err != nil {
			// An unknown variant written by a newer deployment must not
			// make the whole conversation unreadable. Drop it and keep
			// the rest of the log.
			var malformed *MalformedUpdateError
			if errors.As(err, &malformed) {
				continue
			}
			return err
		}
		log = append(log, u)
	}
	*l = log
	return nil
}

// IsTerminalUpdate reports whether an update marks the assistant turn as
// complete: a FinalAnswer, or a Status with error or finished.
func IsTerminalUpdate(u MessageUpdate) bool {
	switch v := u.(type) {
	case FinalAnswerUpdate:
		return true
	case StatusUpdate:
		return v.Status == StatusError || v.Status == StatusFinished
	default:
		return false
	}
}
