// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Every component that waits (the reconnecting channel's retry timer,
// connect and credential timeouts, token expiry checks) takes a Clock
// instead of calling the time package directly. Real() is the standard
// library; Fake() is a deterministic clock that only moves when a test
// calls Advance.
//
// A typical reconnect test:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	channel := transport.New(transport.Config{Clock: fake, ...})
//	// ... force an abnormal close ...
//	fake.WaitForTimers(1)           // the reconnect timer is registered
//	fake.Advance(3 * time.Second)   // the reconnect attempt runs now
//
// AfterFunc callbacks fire synchronously inside Advance, so the effects
// of a reconnect attempt are visible as soon as Advance returns.
package clock
