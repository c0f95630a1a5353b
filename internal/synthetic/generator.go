// Package synthetic produces deterministic panels and scripted activity
// for the simulator and integration tests. The same seed always yields the
// same panel, the same authors and the same activity stream, so simulated
// runs are reproducible end to end.
package synthetic

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"panelgauge/internal/adapters/source"
	"panelgauge/internal/domain/model"
)

// Default generator configuration constants.
const (
	defaultCommunities = 10
	defaultAuthorPool  = 200
	defaultPostsPerDay = 40
	defaultDays        = 7
)

// categories cycles through the panel's coverage groupings.
var categories = []string{"general", "tech", "entertainment", "news", "science"}

// noiseHandles are interleaved into generated activity so exclusion
// filtering is exercised on every simulated day.
var noiseHandles = []string{"AutoModerator", "[deleted]", "[removed]", "None"}

// failureErrors rotate across scripted failing communities.
var failureErrors = []error{source.ErrPrivate, source.ErrNotFound, source.ErrRateLimited}

// Config controls the generator. Zero values fall back to defaults.
type Config struct {
	Seed        int64
	Communities int
	AuthorPool  int // shared pool; authors appear across communities and days
	PostsPerDay int // activity records per community per day
	Days        int
	StartDay    model.Day
	FailEvery   int  // every n-th community is scripted to fail (0 disables)
	Noise       bool // interleave excluded handles into the stream
}

func (c Config) withDefaults() Config {
	if c.Communities <= 0 {
		c.Communities = defaultCommunities
	}
	if c.AuthorPool <= 0 {
		c.AuthorPool = defaultAuthorPool
	}
	if c.PostsPerDay <= 0 {
		c.PostsPerDay = defaultPostsPerDay
	}
	if c.Days <= 0 {
		c.Days = defaultDays
	}
	if c.StartDay == "" {
		c.StartDay = model.DayOf(time.Now())
	}
	return c
}

// Generator produces panels and scripted activity from a seeded stream.
type Generator struct {
	cfg     Config
	rng     *rand.Rand
	authors []string
}

// New creates a generator for the given configuration.
func New(cfg Config) *Generator {
	cfg = cfg.withDefaults()
	g := &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}

	// Name-based UUIDs keep author handles stable across runs with the
	// same seed regardless of generation order.
	g.authors = make([]string, cfg.AuthorPool)
	for i := range g.authors {
		name := fmt.Sprintf("author-%d", i)
		g.authors[i] = uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
	}
	return g
}

// Panel returns the generated draft panel, one member per community.
func (g *Generator) Panel() []model.PanelMember {
	members := make([]model.PanelMember, 0, g.cfg.Communities)
	for i := 0; i < g.cfg.Communities; i++ {
		members = append(members, model.PanelMember{
			Community: fmt.Sprintf("community-%02d", i),
			Category:  categories[i%len(categories)],
		})
	}
	return members
}

// Populate loads scripted activity for the generated panel across the
// configured day range and injects the configured failures. It returns the
// panel it populated for.
func (g *Generator) Populate(src *source.Static) []model.PanelMember {
	members := g.Panel()
	g.PopulateFor(src, members)
	return members
}

// PopulateFor loads scripted activity for an externally supplied panel,
// typically the one declared in configuration.
func (g *Generator) PopulateFor(src *source.Static, members []model.PanelMember) {
	for i, m := range members {
		if g.cfg.FailEvery > 0 && (i+1)%g.cfg.FailEvery == 0 {
			src.Fail(m.Community, failureErrors[i%len(failureErrors)])
			continue
		}
		for d := 0; d < g.cfg.Days; d++ {
			day := g.cfg.StartDay.Add(d)
			src.Add(m.Community, g.dayActivity(day)...)
		}
	}
}

// dayActivity generates one community-day of raw records, drawing authors
// from the shared pool so the same author can appear in several
// communities on the same day.
func (g *Generator) dayActivity(day model.Day) []source.Activity {
	n := g.cfg.PostsPerDay/2 + g.rng.Intn(g.cfg.PostsPerDay/2+1)
	acts := make([]source.Activity, 0, n+2)

	for i := 0; i < n; i++ {
		kind := "post"
		if g.rng.Intn(2) == 1 {
			kind = "comment"
		}
		acts = append(acts, source.Activity{
			Author:    g.authors[g.rng.Intn(len(g.authors))],
			Kind:      kind,
			CreatedAt: g.timestamp(day),
		})
	}

	if g.cfg.Noise {
		acts = append(acts, source.Activity{
			Author:    noiseHandles[g.rng.Intn(len(noiseHandles))],
			Kind:      "comment",
			CreatedAt: g.timestamp(day),
		})
	}
	return acts
}

// timestamp picks a random instant inside the day.
func (g *Generator) timestamp(day model.Day) time.Time {
	return day.Time().Add(time.Duration(g.rng.Intn(24*3600)) * time.Second)
}
