//go:build nodebug

package executor

func init() {
	BuildTags = append(BuildTags, "nodebug")
}

// DBGon is a shorthand for checking if generic debug logging is enabled.
func DBGon() bool {
	return false
}

// DBG is a shorthand for logging a debug message.
func DBG(f string, a ...interface{}) {
}
