package unitofwork

import "errors"

var (
	ErrTransactionStarted = errors.New("transaction already started")
	ErrNoTransaction      = errors.New("no transaction in progress")
)
