// Package gitsync brings a local clone up to date by running
// `git pull <remote> <branch>` as a subprocess.
//
// The branch is passed as its own argv element and no shell is involved.
// Every run has a hard timeout; on expiry the whole process group receives
// SIGTERM, then SIGKILL after a grace period. Once git is reaped the group
// gets a final SIGKILL so children that ignored SIGTERM do not outlive it.
//
// Runs against the same repository are serialized: in-process with a
// semaphore whose wait honors ctx, and across processes with an flock on
// .git/hookpull.lock.
package gitsync
