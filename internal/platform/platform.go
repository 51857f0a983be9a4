// Package platform centralizes the handful of whole-system constants
// that many packages need to agree on: CPU count, PID space, and timer
// cadence.
package platform

/// NCPU is the number of CPUs the kernel boots on.
const NCPU = 4

/// MaxPid is one past the highest assignable PID; PIDs run 1..32767.
const MaxPid = 32768

/// ReservedPids is the number of low PIDs reserved for the per-CPU
/// idle threads plus root (1..NCPU+1); kill rejects these.
const ReservedPids = NCPU + 1

/// TickMillis is the nominal scheduling quantum: a timer-driven
/// preemption every 20ms.
const TickMillis = 20

/// ClockGranularityMillis is the coarser wakeup granularity for
/// clock-driven (non-scheduling) timers.
const ClockGranularityMillis = 10
