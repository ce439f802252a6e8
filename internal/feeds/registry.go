package feeds

// Known lists every supported feed in the order the aggregator queries them.
var Known = []string{FeedAbuseIPDB, FeedGreyNoise, FeedShodan, FeedOTX}

// Build constructs the adapters named in opts. Feeds missing from opts are
// left out, so a partial set is valid; a feed present with an empty APIKey
// runs in placeholder mode.
func Build(opts map[string]Options) ([]IndicatorLookup, []ResourceInspector) {
	var lookups []IndicatorLookup
	var inspectors []ResourceInspector

	for _, name := range Known {
		o, ok := opts[name]
		if !ok {
			continue
		}
		switch name {
		case FeedAbuseIPDB:
			lookups = append(lookups, NewAbuseIPDB(o))
		case FeedGreyNoise:
			lookups = append(lookups, NewGreyNoise(o))
		case FeedShodan:
			lookups = append(lookups, NewShodan(o))
		case FeedOTX:
			inspectors = append(inspectors, NewOTX(o))
		}
	}
	return lookups, inspectors
}
