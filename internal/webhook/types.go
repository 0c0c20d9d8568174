package webhook

import (
	"context"
	"time"

	"github.com/mattjoyce/hookpull/internal/gitsync"
	"github.com/mattjoyce/hookpull/internal/history"
)

//go:generate mockgen -destination=mocks/mock_webhook.go -package=mocks github.com/mattjoyce/hookpull/internal/webhook Syncer,Recorder

// Syncer updates the local clone. Check is called before Sync so that a
// misconfigured repository is reported without spawning anything.
type Syncer interface {
	Check() error
	Sync(ctx context.Context, branch string) (*gitsync.Result, error)
}

// Recorder stores the outcome of each delivery. Optional.
type Recorder interface {
	Record(ctx context.Context, d history.Delivery) error
}

// Config holds webhook server configuration.
type Config struct {
	// Listen is the host:port to bind, e.g. "0.0.0.0:5000".
	Listen string

	// Path is the URL path receiving deliveries (default "/webhook").
	Path string

	// Secret is the HMAC secret shared with GitHub.
	Secret string

	// SecretIsPlaceholder marks a secret that was never configured.
	// Requests are still verified (and fail) but each one logs a warning.
	SecretIsPlaceholder bool

	// MaxBodySize is the maximum allowed request body size in bytes.
	MaxBodySize int64

	// SyncTimeout is the git timeout; the HTTP write timeout is derived from it.
	SyncTimeout time.Duration
}

// Request is an inbound delivery. Body holds the exact bytes received.
type Request struct {
	Event      string
	Signature  string
	DeliveryID string
	Body       []byte
}

// Response is the plain-text answer to a delivery and what led to it.
type Response struct {
	Status  int
	Message string

	Outcome history.Outcome
	Push    *PushEvent
	Result  *gitsync.Result
	Failure *Failure
}

// Response bodies.
const (
	MsgRunning          = "Webhook server is running!"
	MsgInvalidSignature = "Invalid signature"
	MsgInvalidJSON      = "Invalid JSON"
	MsgEventIgnored     = "Event ignored"
	MsgInvalidPushEvent = "Invalid push event"
	MsgInvalidBranch    = "Invalid branch name"
	MsgRepoNotFound     = "Repo path not found"
	MsgNotGitRepo       = "Not a git repo"
	MsgPullSuccessful   = "OK - Pull successful"
	MsgPullFailed       = "Git pull failed: "
	MsgPullTimeout      = "Timeout while executing git pull"
	MsgPullError        = "Error during git pull: "
	MsgPayloadTooLarge  = "Payload too large"
	MsgReadFailed       = "Failed to read body"
)

// Default values
const (
	DefaultPath        = "/webhook"
	DefaultMaxBodySize = 25 * 1024 * 1024
	DefaultSyncTimeout = 30 * time.Second
)
