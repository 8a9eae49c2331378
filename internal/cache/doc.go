// Package cache provides a small generic TTL cache.
//
// Entries expire after a fixed TTL and the cache holds at most maxSize keys,
// evicting the oldest insertion first. It backs the perspective aggregator's
// preference lookups:
//
//	prefs := cache.New[*store.Preferences](time.Minute, 10_000)
//	defer prefs.Close()
//	if p, ok := prefs.Get(userID); ok {
//	    ...
//	}
package cache
