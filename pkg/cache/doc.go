// Package cache provides string set/get operations over a Redis store,
// independent of how connections are obtained.
//
// A Manager wraps a Provider: a pool.Pool (async or blocking) or a
// direct.Provider that dials per call. Every operation acquires one
// connection, runs its commands on it and releases it on all exit paths.
//
// # Basic Usage
//
//	dialer, err := transport.NewRedisDialer("redis://127.0.0.1/", transport.Options{})
//	if err != nil {
//		return err
//	}
//
//	p, err := pool.NewAsync(pool.DefaultConfig("mobc"), dialer, logger)
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	kv := cache.NewManager("mobc", p, logger)
//	if err := kv.SetStr(ctx, "mobc_hello", "mobc_world", 60); err != nil {
//		return err
//	}
//	value, err := kv.GetStr(ctx, "mobc_hello")
//
// # Errors
//
// Every failure is a *kverr.Error. Use kverr.StageOf to tell them apart:
//
//   - acquisition / client_construction: no connection could be obtained
//   - command_execution: the store failed a command; the connection is
//     marked unhealthy and not reused
//   - type_decoding: the reply was missing (ErrKeyNotFound), of the wrong
//     type (ErrUnexpectedType) or not UTF-8 (ErrInvalidUTF8)
//
// Nothing is retried.
//
// # Metrics
//
//   - kv_commands_total{provider,command,result}
//   - kv_command_duration_seconds{provider,command}
//   - kv_errors_total{provider,stage}
package cache
