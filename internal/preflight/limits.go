package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the descriptor limit below which a warning is shown.
// Every named index keeps several segment files open.
const MinFileDescriptors = 1024

// MaxSocketPath is the longest Unix socket path accepted on every platform
// the daemon runs on.
const MaxSocketPath = 104

// CheckFileDescriptors warns when the file descriptor limit is low.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors"}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckSocketPath fails when path is too long to bind.
func (c *Checker) CheckSocketPath(path string) CheckResult {
	result := CheckResult{Name: "socket_path", Required: true, Details: path}
	if len(path) > MaxSocketPath {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%d bytes (maximum: %d)", len(path), MaxSocketPath)
		result.Details = "Set server.socket_path to a shorter path"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d bytes", len(path))
	return result
}
