package propagator

import "fmt"

// ErrorClass replaces the three-valued (0/1/-1) result of spec.md §7 with a
// sum type, per the Design Notes in spec.md §9: "the three-valued rc
// becomes Result<(), ErrorClass> where ErrorClass ∈ {Soft, Fatal}."
type ErrorClass int

const (
	// Soft marks the entry (and its ancestors) ERROR and lets the walk
	// continue onto the next entry.
	Soft ErrorClass = iota
	// Fatal propagates up and aborts the current propagate_files pass.
	Fatal
)

func (c ErrorClass) String() string {
	if c == Fatal {
		return "fatal"
	}
	return "soft"
}

// Classified is the error type every operator returns in place of the
// errno-plus-return-code pairing of spec.md §7/§9: {kind, driver_message,
// system_errno} becomes {Err, Class}. Soft is the zero value so a nil
// *Classified (no error) is the common, unremarkable case.
type Classified struct {
	Err   error
	Class ErrorClass
}

func (c *Classified) Error() string {
	if c == nil || c.Err == nil {
		return ""
	}
	return fmt.Sprintf("%s (%s)", c.Err, c.Class)
}

func (c *Classified) Unwrap() error {
	if c == nil {
		return nil
	}
	return c.Err
}

// soft and fatal are the two constructors every operator uses to report a
// per-entry failure, matching §7's errno mapping table: ENOMEM and the
// close-time ENOSPC/EDQUOT/ERRNO_USER_ABORT cases are fatal; everything
// else is soft.
func soft(err error) *Classified {
	if err == nil {
		return nil
	}
	return &Classified{Err: err, Class: Soft}
}

func fatal(err error) *Classified {
	if err == nil {
		return nil
	}
	return &Classified{Err: err, Class: Fatal}
}

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/csync/propagator."+typeMethod+": "+format, a...)
}
