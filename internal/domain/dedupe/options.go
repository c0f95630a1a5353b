package dedupe

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithExcludedHandles adds handles to the exclusion set on top of the
// built-in moderation-bot and placeholder handles. Matching stays exact and
// case-sensitive.
func WithExcludedHandles(handles ...string) Option {
	return func(d *inMemoryDeduper) {
		for _, h := range handles {
			d.excluded[h] = struct{}{}
		}
	}
}
