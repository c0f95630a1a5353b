// Package source adapts the external content platform that supplies raw
// activity for panel communities.
//
// The platform is a collaborator, not part of this system: it exposes a
// paginated, rate-limited, per-call-fallible listing of posts and comments.
// Everything here treats a single community's failure as recordable and
// non-fatal; a collection run always continues with the rest of the panel.
package source

import (
	"context"
	"time"
)

// Activity is one raw record as returned by the content platform.
type Activity struct {
	Author    string
	Kind      string    // "post" or "comment"
	CreatedAt time.Time // UTC
}

// Page is one slice of a paginated listing. An empty NextCursor means the
// listing is exhausted for the requested range.
type Page struct {
	Records    []Activity
	NextCursor string
}

// Source lists activity for a community in a time range. Every call is
// fallible and rate-limited by the platform.
type Source interface {
	ListActivity(ctx context.Context, community string, since, until time.Time, cursor string) (Page, error)
}
