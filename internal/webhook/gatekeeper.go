package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mattjoyce/hookpull/internal/gitsync"
	"github.com/mattjoyce/hookpull/internal/history"
)

// process runs a delivery through the checks in order and stops at the first
// failure:
//
//  1. signature must verify             else 403
//  2. body must be JSON (not null)      else 400
//  3. event must be push                else 200, ignored
//  4. payload must carry a string ref   else 400
//  5. repository must exist and be a clone, then git pull runs
//
// Nothing reaches the Syncer unless steps 1-4 passed.
func (s *Server) process(ctx context.Context, req Request, logger *slog.Logger) Response {
	logger = logger.With("event", req.Event)
	logger.Info("received event")

	if s.config.SecretIsPlaceholder {
		logger.Warn("webhook secret is not configured; every signature will be rejected")
	}

	if err := VerifySignature(req.Body, req.Signature, s.config.Secret); err != nil {
		f := fail(KindAuthentication, http.StatusForbidden, MsgInvalidSignature, err)
		// The received signature is safe to log; the secret never is.
		logger.Warn("signature verification failed", "error", err, "signature", req.Signature)
		return rejected(f)
	}
	logger.Debug("signature verified")

	data, err := decodePayload(req.Body)
	if err != nil {
		f := fail(KindValidation, http.StatusBadRequest, MsgInvalidJSON, err)
		logger.Warn("failed to parse JSON payload", "error", err)
		return rejected(f)
	}

	if req.Event != EventPush {
		logger.Info("ignoring event", "expected", EventPush)
		return Response{Status: http.StatusOK, Message: MsgEventIgnored, Outcome: history.OutcomeIgnored}
	}

	push, err := parsePushEvent(data, req.Body)
	if err != nil {
		f := fail(KindValidation, http.StatusBadRequest, MsgInvalidPushEvent, err)
		logger.Warn("invalid push event", "error", err)
		return rejected(f)
	}

	logger = logger.With("branch", push.Branch, "repository", push.Repository, "pusher", push.Pusher)
	logger.Info("received push")

	if err := gitsync.ValidateBranch(push.Branch); err != nil {
		f := fail(KindValidation, http.StatusBadRequest, MsgInvalidBranch, err)
		logger.Warn("refusing branch name", "ref", push.Ref, "error", err)
		resp := rejected(f)
		resp.Push = push
		return resp
	}

	if err := s.syncer.Check(); err != nil {
		f := preconditionFailure(err)
		logger.Error("repository precondition failed", "error", err)
		resp := failed(f)
		resp.Push = push
		return resp
	}

	logger.Info("executing git pull")
	result, err := s.syncer.Sync(ctx, push.Branch)
	resp := Response{Push: push, Result: result}

	if err == nil {
		logger.Info("git pull executed successfully",
			"stdout", result.Stdout,
			"stderr", result.Stderr,
			"duration_ms", result.Duration.Milliseconds(),
		)
		resp.Status = http.StatusOK
		resp.Message = MsgPullSuccessful
		resp.Outcome = history.OutcomeSynced
		return resp
	}

	f := executionFailure(err)
	attrs := []any{"error", err}
	if result != nil {
		attrs = append(attrs,
			"exit_code", result.ExitCode,
			"stdout", result.Stdout,
			"stderr", result.Stderr,
			"timed_out", result.TimedOut,
		)
	}
	logger.Error("git pull failed", attrs...)

	resp.Status = f.Status
	resp.Message = f.Message
	resp.Outcome = history.OutcomeFailed
	resp.Failure = f
	return resp
}

// preconditionFailure maps a Syncer.Check error to its response.
func preconditionFailure(err error) *Failure {
	switch {
	case errors.Is(err, gitsync.ErrRepoNotFound):
		return fail(KindPrecondition, http.StatusInternalServerError, MsgRepoNotFound, err)
	case errors.Is(err, gitsync.ErrNotGitRepo):
		return fail(KindPrecondition, http.StatusInternalServerError, MsgNotGitRepo, err)
	default:
		return fail(KindPrecondition, http.StatusInternalServerError, MsgPullError+err.Error(), err)
	}
}

// executionFailure maps a Syncer.Sync error to its response.
func executionFailure(err error) *Failure {
	var exitErr *gitsync.ExitError
	switch {
	case errors.As(err, &exitErr):
		return fail(KindExecution, http.StatusInternalServerError, MsgPullFailed+exitErr.Stderr, err)
	case errors.Is(err, gitsync.ErrTimeout):
		return fail(KindExecution, http.StatusInternalServerError, MsgPullTimeout, err)
	case errors.Is(err, gitsync.ErrRepoNotFound), errors.Is(err, gitsync.ErrNotGitRepo):
		return preconditionFailure(err)
	default:
		return fail(KindExecution, http.StatusInternalServerError, MsgPullError+err.Error(), err)
	}
}

func rejected(f *Failure) Response {
	return Response{Status: f.Status, Message: f.Message, Outcome: history.OutcomeRejected, Failure: f}
}

func failed(f *Failure) Response {
	return Response{Status: f.Status, Message: f.Message, Outcome: history.OutcomeFailed, Failure: f}
}
