// Package cache provides the cache provider abstraction behind the
// pipeline.cache configuration: an in-process memory backend, a redis
// backend, the default key generator, and the write-through side-effect
// step that cache aspects expand into.
package cache
