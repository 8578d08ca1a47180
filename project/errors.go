package project

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNoChannel = errors.New("channel not found")
	ErrConfig    = errors.New("config error")
)

// UnknownCodeError is returned for a G or M code with no handler.
type UnknownCodeError struct {
	Class CodeClass
	Code  int
}

func (self *UnknownCodeError) Error() string {
	return fmt.Sprintf("Bad %c-code %d", self.Class, self.Code)
}

func IsUnknownCode(err error) bool {
	_, ok := errors.Cause(err).(*UnknownCodeError)
	return ok
}
