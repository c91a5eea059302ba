// Package cache provides the optional analysis-result cache. A Redis client
// is used when [cache].redis_addr is set; MemoryClient serves tests and
// single-process runs.
package cache
