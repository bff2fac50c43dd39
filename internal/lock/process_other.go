//go:build !unix

package lock

// canProbe is false where process liveness cannot be checked; staleness
// then depends on the marker's age alone.
const canProbe = false

func processAlive(pid int) bool {
	return pid > 0
}
