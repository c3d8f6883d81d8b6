// Package sim provides an in-memory hal.Controller for tests and host-side
// simulation. It enforces the hardware arming discipline (completions only
// for armed endpoints, stalls cleared by the next SETUP) without modeling
// registers or timing.
package sim
