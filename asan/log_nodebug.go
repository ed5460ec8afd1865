//go:build nodebug

package asan

// logging functions, no debug version (empty, do nothing functions)

func init() {
	BuildTags = append(BuildTags, "nodebug")
}

// DBGon reports whether generic debug logging is enabled.
func DBGon() bool {
	return false
}

// DBG is a shorthand for logging a debug message.
func DBG(f string, a ...interface{}) {
}
