package vio

import "fmt"

// errorf mirrors the teacher's internal/storage.errorf / internal/tree.errorf
// helper: prefix errors with the fully-qualified method name that produced
// them, which shows up verbatim in logs further up the stack.
func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/csync/vio."+typeMethod+": "+format, a...)
}
