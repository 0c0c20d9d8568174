// Package webhook receives GitHub deliveries and turns verified push events
// into a git pull of the configured clone.
//
// # Request Flow
//
//  1. POST arrives at the configured path (default /webhook)
//  2. Body size checked (413 if too large)
//  3. X-Hub-Signature-256 verified over the raw body (403 on any mismatch)
//  4. Body parsed as JSON (400 if invalid or null)
//  5. Non-push events acknowledged with 200 "Event ignored"
//  6. Push payload must carry a string "ref" (400 otherwise)
//  7. Branch taken from the last segment of ref and checked (400 if unusable).
//     An empty name or one starting with "-" is refused because git would
//     parse a leading "-" as an option rather than a branch.
//  8. Repository path and .git checked (500 if missing)
//  9. git pull <remote> <branch> run with a timeout (200 on success, 500 otherwise)
//
// Responses are short plain-text bodies. Signature failures never say which
// part of the check failed.
//
// # Example Usage
//
//	syncer := gitsync.New(gitsync.Options{RepoPath: "/srv/site"})
//	server := webhook.New(webhook.Config{
//		Listen: "0.0.0.0:5000",
//		Secret: os.Getenv("HOOKPULL_SECRET"),
//	}, syncer, nil, logger)
//	if err := server.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package webhook
