// Package preflight checks that the environment can host the daemon before
// it starts:
//   - the data directory, socket directory and inbox are writable
//   - the socket path fits the platform limit
//   - the data volume has free space
//   - the file descriptor limit leaves room for open index segments
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(cfg)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
