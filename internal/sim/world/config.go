package world

type Config struct {
	ID         string
	TickRateHz int

	// SweepEveryTicks controls how often expired auctions settle;
	// SnapshotEveryTicks how often an autosave is enqueued.
	SweepEveryTicks    uint64
	SnapshotEveryTicks uint64

	// Starter items granted on a player's first join.
	// If nil, defaults are applied; if non-nil but empty, new players
	// get no starter items.
	StarterItems map[string]int
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.SweepEveryTicks == 0 {
		c.SweepEveryTicks = 5
	}
	if c.SnapshotEveryTicks == 0 {
		c.SnapshotEveryTicks = 3000
	}
	if c.StarterItems == nil {
		c.StarterItems = map[string]int{
			"BREAD":      5,
			"IRON_SWORD": 1,
		}
	}
}
