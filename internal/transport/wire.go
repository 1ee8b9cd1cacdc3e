package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved socket.io events of the pub/sub protocol.
const (
	EventSubscribe   = "#subscribe"
	EventUnsubscribe = "#unsubscribe"
	EventPublish     = "#publish"
)

// SourceQuery is the query parameter that carries the caller's alias.
const SourceQuery = "source"

// Envelope is the payload of an RPC call.
type Envelope struct {
	IsPublic       bool            `json:"isPublic"`
	IsWorkerAction bool            `json:"isWorkerAction,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Info           json.RawMessage `json:"info,omitempty"`
}

// Response is the acknowledgement of an RPC call.
type Response struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *RPCError       `json:"error,omitempty"`
}

// Publication is an event published on a channel.
type Publication struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data,omitempty"`
	Info    json.RawMessage `json:"info,omitempty"`
}

// ackFunc matches the acknowledgement callbacks of both socket.io packages.
type ackFunc = func([]any, error)

var errMalformedPacket = errors.New("malformed packet")

func encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// decodeArg decodes the JSON string carried as the first event argument.
func decodeArg(args []any, v any) error {
	if len(args) == 0 {
		return errMalformedPacket
	}
	raw, ok := args[0].(string)
	if !ok {
		return fmt.Errorf("%w: expected a string argument, got %T", errMalformedPacket, args[0])
	}
	return json.Unmarshal([]byte(raw), v)
}

// splitAck separates a trailing acknowledgement callback from event args.
func splitAck(args []any) ([]any, ackFunc) {
	if len(args) == 0 {
		return args, nil
	}
	if ack, ok := args[len(args)-1].(ackFunc); ok {
		return args[:len(args)-1], ack
	}
	return args, nil
}

// Marshal encodes an arbitrary value for use as params, info or data.
// A nil value encodes to nil.
func Marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
