// Package content turns a campaign's templates into a per-lead message:
// spintax variant selection, Liquid variable injection, name parsing for
// personalization, and signed unsubscribe links.
package content
