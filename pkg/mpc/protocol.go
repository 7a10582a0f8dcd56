package mpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the bridge.
const BaseTopic = "mpc/v1"

// CallEnvelope asks a bridge node to invoke one binding function.
type CallEnvelope struct {
	ID      string            `json:"id"`
	Fn      string            `json:"fn"`
	TS      int64             `json:"ts"`
	From    string            `json:"from"`
	ReplyTo string            `json:"replyTo,omitempty"`
	Args    []json.RawMessage `json:"args,omitempty"`
}

// ReplyEnvelope is the response to a call.
type ReplyEnvelope struct {
	ID     string          `json:"id"`
	Fn     string          `json:"fn"`
	OK     bool            `json:"ok"`
	TS     int64           `json:"ts"`
	Result json.RawMessage `json:"result,omitempty"`
	Err    *ReplyError     `json:"err,omitempty"`
}

// ReplyError describes an error response.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Presence describes a node presence payload.
type Presence struct {
	NodeID string         `json:"nodeId"`
	Kind   string         `json:"kind"`
	Name   string         `json:"name"`
	Caps   map[string]any `json:"caps,omitempty"`
	TS     int64          `json:"ts"`
}

// StateMessage is the retained daemon state published on change.
type StateMessage struct {
	Daemon  string   `json:"daemon"`
	Status  Status   `json:"status"`
	Current *Track   `json:"current,omitempty"`
	Changed []string `json:"changed,omitempty"`
	TS      int64    `json:"ts"`
}

// NewCall builds a call envelope, marshalling each positional argument.
func NewCall(fn string, args ...any) (CallEnvelope, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		payload, err := json.Marshal(arg)
		if err != nil {
			return CallEnvelope{}, fmt.Errorf("marshal arg %d: %w", i+1, err)
		}
		raw = append(raw, payload)
	}
	return CallEnvelope{Fn: fn, Args: raw}, nil
}

// ValidateCallEnvelope validates required fields.
func ValidateCallEnvelope(call CallEnvelope) error {
	if strings.TrimSpace(call.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(call.Fn) == "" {
		return errors.New("fn is required")
	}
	if call.TS <= 0 {
		return errors.New("ts must be a positive unix timestamp")
	}
	if strings.TrimSpace(call.From) == "" {
		return errors.New("from is required")
	}
	for i, arg := range call.Args {
		if len(arg) == 0 || !json.Valid(arg) {
			return fmt.Errorf("arg %d is not valid json", i+1)
		}
	}
	return nil
}

// TopicPresence builds the presence topic for a node.
func TopicPresence(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/presence", topicBase, nodeID)
}

// TopicState builds the state topic for a node.
func TopicState(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/state", topicBase, nodeID)
}

// TopicCalls builds the call topic for a node.
func TopicCalls(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/call", topicBase, nodeID)
}

// TopicReply builds the reply topic for a caller instance.
func TopicReply(topicBase, callerID string) string {
	return fmt.Sprintf("%s/reply/%s", topicBase, callerID)
}
