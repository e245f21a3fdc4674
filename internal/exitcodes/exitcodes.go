package exitcodes

// Exit codes for distinct-hash
// Per-file hashing or deletion failures never change the exit code
const (
	Success = 0 // Run completed, whatever was found or deleted
	Failure = 1 // Unsupported algorithm or unusable configuration
)
