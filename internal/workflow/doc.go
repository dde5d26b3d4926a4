// Package workflow holds the state of the subtitle pipeline: which step the
// user is on, which steps are complete, and the artifacts each step produced.
//
// A Store is constructed once per process and injected wherever state is
// read or changed. Artifacts live in two tiers. Binary artifacts (the source
// video handle, extracted audio, imported audio and the final video) stay in
// process memory; everything else is persisted as a JSON snapshot in a
// key-value Slot after every mutation. Reads always see one merged view.
//
// Step access follows an explicit Policy. PolicyPermissive lets any step be
// entered directly, PolicyGated requires the previous step to be complete or
// its completion predicate to hold. ProceedToNext always checks the current
// step's predicate regardless of policy.
package workflow
