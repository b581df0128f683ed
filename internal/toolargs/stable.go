package toolargs

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StableJSON serializes v with object keys sorted at every depth, so two values
// that differ only in key order produce identical output.
func StableJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	// encoding/json writes map keys in sorted order.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// IdempotencyKey fingerprints a normalized call as name plus stable arguments.
func IdempotencyKey(args Args) (string, error) {
	if args == nil {
		return "", fmt.Errorf("nil arguments")
	}
	body, err := StableJSON(args)
	if err != nil {
		return "", err
	}
	return args.ToolName() + ":" + body, nil
}
