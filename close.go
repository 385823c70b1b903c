package letsearch

// Close releases every registered collection's database handle. The
// registry is not usable afterwards. Loaded embedders are process-lifetime
// and need no teardown.
func (r *CollectionRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, c := range r.collections {
		if err := c.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.collections, name)
	}
	return firstErr
}
