// Package wait drives waiting for all configured services.
//
// Overview
//
// A Waiter resolves service addresses, creates a report.Job per service and
// lets the prober poll it until reachable. Every unit of work runs under a
// guard.Guard, so an expired deadline reports the timeout and terminates the
// process with exit code 1.
//
// Serial mode waits for services one by one in the given order. Each service
// has its own deadline and the first timeout stops the run, later services
// are not even resolved.
//
// Parallel mode resolves every address first, then waits for all services
// concurrently under a single shared deadline. On expiry every job still
// pending gets exactly one timeout message; jobs which have already
// succeeded are not reported again.
//
//	addresses -> address.Resolve -> report.Job -> guard.Run( probe.Until ) -> report
//
// The expiry sweep reads job outcomes while the probing goroutines may still
// be finishing, a job which succeeds at the very same moment may be reported
// both ways. This is accepted.
package wait
