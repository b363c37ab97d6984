package model

import (
	"errors"
)

var (
	ErrMalformedAddress = errors.New("malformed service address")
	ErrTimeout          = errors.New("timeout")
	ErrCommand          = errors.New("command can't be started")
	ErrConfig           = errors.New("invalid configuration")
)
