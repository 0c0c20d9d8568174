package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/go-github/v66/github"
)

// EventPush is the only X-GitHub-Event value that triggers a sync.
const EventPush = "push"

// unknownField is used when the payload omits repository or pusher names.
const unknownField = "unknown"

var (
	ErrInvalidJSON      = errors.New("body is not valid JSON")
	ErrInvalidPushEvent = errors.New("invalid push event")
)

// PushEvent is the subset of a GitHub push payload the sync needs.
type PushEvent struct {
	Ref        string
	Branch     string
	Repository string
	Pusher     string
}

// decodePayload parses body as JSON. A JSON null counts as invalid.
func decodePayload(body []byte) (any, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: null payload", ErrInvalidJSON)
	}
	return data, nil
}

// parsePushEvent extracts the push fields from an already decoded payload.
// data must be a JSON object with a string "ref".
func parsePushEvent(data any, body []byte) (*PushEvent, error) {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: payload is %T, not an object", ErrInvalidPushEvent, data)
	}
	rawRef, ok := obj["ref"]
	if !ok {
		return nil, fmt.Errorf("%w: missing 'ref' field (available: %s)", ErrInvalidPushEvent, strings.Join(slices.Sorted(maps.Keys(obj)), ", "))
	}
	ref, ok := rawRef.(string)
	if !ok {
		return nil, fmt.Errorf("%w: 'ref' is %T, not a string", ErrInvalidPushEvent, rawRef)
	}

	ev := &PushEvent{
		Ref:        ref,
		Branch:     BranchFromRef(ref),
		Repository: unknownField,
		Pusher:     unknownField,
	}

	// Repository and pusher are informational; a payload whose shape go-github
	// rejects still syncs, it just logs them as unknown.
	parsed, err := github.ParseWebHook(EventPush, body)
	if err != nil {
		return ev, nil
	}
	if push, ok := parsed.(*github.PushEvent); ok {
		if name := push.GetRepo().GetName(); name != "" {
			ev.Repository = name
		}
		if name := push.GetPusher().GetName(); name != "" {
			ev.Pusher = name
		}
	}
	return ev, nil
}

// BranchFromRef returns the last path segment of ref, so
// "refs/heads/feature/x" yields "x". A ref without "/" is returned as is.
func BranchFromRef(ref string) string {
	return ref[strings.LastIndex(ref, "/")+1:]
}
