/*
Package resilience provides a circuit breaker used to fail fast on broken
dependencies.

The executor uses it to guard process spawns: when a configured binary keeps
failing to start (missing, not executable, fd exhaustion), further spawns for
that binary are rejected immediately until the open period elapses. A rejected
spawn is still reported to the caller as a spawn failure; nothing is retried.

# States

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[MaxRequests successes]-> Closed
	                                               |
	                                           [failure] -> Open

# Usage

	group := resilience.NewGroup(resilience.Settings{
		Timeout: 10 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 3 },
	})
	h, err := resilience.Do(group.Get("/usr/local/bin/claude"), func() (*Handle, error) {
		return spawn()
	})
*/
package resilience
