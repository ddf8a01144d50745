// Package health provides composable probes for the liveness and readiness
// endpoints served on the ops port.
//
// [All] combines probes, [Fixed] is static, [CheckFunc] adapts a function and
// [DirWritable] checks that a storage directory accepts new files.
// [ShutdownGate] fails readiness as soon as draining starts so load balancers
// stop routing before in-flight requests finish.
package health
