// Package history records dispatches and answers "what was the last
// command sent to this blind?".
//
// SQLiteStore keeps one row per device per dispatch in the dispatch_log
// table. RedisCache keeps only the latest successful command per device,
// with a TTL, for deployments that want status reads off the database.
// Both implement dispatch.Recorder and LastCommandSource.
package history
