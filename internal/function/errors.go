package function

import (
	"errors"
	"fmt"
)

var ErrUnknownFunction = errors.New("unknown function")

// ArgumentCountError is returned when the function is bound or called with the
// wrong number of arguments.
type ArgumentCountError struct {
	Name string
	Got  int
	Want int
}

func (e *ArgumentCountError) Error() string {
	return fmt.Sprintf("%s expects exactly %d arguments, got %d", e.Name, e.Want, e.Got)
}

// ArgumentTypeError is returned at bind time for an argument whose declared type
// is neither string-like nor floating point.
type ArgumentTypeError struct {
	Name  string
	Index int
	Type  ArgType
}

func (e *ArgumentTypeError) Error() string {
	return fmt.Sprintf("%s: argument %d: a string or floating-point argument was expected but an argument of type %s was given",
		e.Name, e.Index, e.Type)
}
