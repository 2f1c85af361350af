package importer

import "errors"

var (
	ErrShadowMissing      = errors.New("shadow table missing; run import build first")
	ErrTableMissing       = errors.New("production table missing")
	ErrOldTablesPresent   = errors.New("old tables from a previous swap are still present; discard or roll back first")
	ErrNothingToRollback  = errors.New("nothing to roll back: no shadow or old tables present")
	ErrValidationRequired = errors.New("swap requires a passing validation of the current import run")
	ErrInvalidTransition  = errors.New("invalid import stage transition")
	ErrNoRun              = errors.New("no import run recorded")
)
