package harness

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Resolver may rewrite the raw argument text of a call before it is
// normalized, for example to fill in the item the user has open.
type Resolver func(ctx context.Context, call Call, raw string) (string, error)

// InjectField sets path to value in the JSON document raw. Existing values
// are kept unless overwrite is set.
func InjectField(raw, path string, value any, overwrite bool) (string, error) {
	if raw == "" {
		raw = "{}"
	}
	if !overwrite {
		if existing := gjson.Get(raw, path); existing.Exists() && existing.String() != "" {
			return raw, nil
		}
	}
	out, err := sjson.Set(raw, path, value)
	if err != nil {
		return "", fmt.Errorf("inject %s: %w", path, err)
	}
	return out, nil
}

// OpenNoteResolver injects noteId for note tools that omit it.
func OpenNoteResolver(noteID string, tools ...string) Resolver {
	targets := make(map[string]bool, len(tools))
	for _, t := range tools {
		targets[t] = true
	}
	return func(_ context.Context, call Call, raw string) (string, error) {
		if noteID == "" || !targets[call.Name] {
			return raw, nil
		}
		if gjson.Get(raw, "note_id").Exists() {
			return raw, nil
		}
		return InjectField(raw, "noteId", noteID, false)
	}
}

// ChainResolvers applies resolvers in order.
func ChainResolvers(resolvers ...Resolver) Resolver {
	return func(ctx context.Context, call Call, raw string) (string, error) {
		var err error
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			if raw, err = r(ctx, call, raw); err != nil {
				return "", err
			}
		}
		return raw, nil
	}
}
