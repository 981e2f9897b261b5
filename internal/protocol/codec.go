package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// MarshalRequest serializes a QueryRequest to a single JSON line without the
// trailing newline; the transport appends it. json.Marshal escapes embedded
// newline characters in the SQL text, so the frame never spans lines.
func MarshalRequest(req *QueryRequest) ([]byte, error) {
	if req.MsgID <= 0 {
		return nil, fmt.Errorf("invalid msgId: %d", req.MsgID)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	return data, nil
}

// DecodeRequest deserializes one request line received by the worker.
// Returns an error if unmarshaling fails or required fields are missing.
func DecodeRequest(line []byte) (*QueryRequest, error) {
	var req QueryRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}

	if req.MsgID <= 0 {
		return nil, fmt.Errorf("request missing positive msgId")
	}
	if req.SQL == "" {
		return nil, fmt.Errorf("request missing required field: sql")
	}

	return &req, nil
}

// EncodeReply serializes a QueryReply to JSON and writes it to w as one
// newline-terminated line. Used on the worker side of the stream.
func EncodeReply(w io.Writer, rep *QueryReply) error {
	if rep.MsgID <= 0 {
		return fmt.Errorf("invalid msgId: %d", rep.MsgID)
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(rep); err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}

	return nil
}

// DecodeReply deserializes one reply line from the worker. Decoding is
// lenient: unknown fields are ignored because the worker side may evolve
// independently. A reply without a positive msgId is an error; the caller
// drops it as unrecognized rather than crashing.
func DecodeReply(line []byte) (*QueryReply, error) {
	var rep QueryReply
	if err := json.Unmarshal(line, &rep); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}

	if rep.MsgID <= 0 {
		return nil, fmt.Errorf("reply missing positive msgId")
	}

	return &rep, nil
}

// UnwrapResult applies the single-result collapse rule: a one-element result
// array unwraps to the bare element so single-statement queries receive one
// result-set object, while batches receive the ordered sequence unchanged.
// A nil or absent result yields nil.
func UnwrapResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var seq []any
	if err := json.Unmarshal(raw, &seq); err != nil {
		return nil, fmt.Errorf("result is not an array: %w", err)
	}

	if len(seq) == 1 {
		return seq[0], nil
	}
	return seq, nil
}
