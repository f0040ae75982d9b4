package wal

import "github.com/stratadb/strata/pkg/strataerr"

func errConfigf(format string, args ...any) error {
	return strataerr.New(strataerr.InvalidInput, format, args...)
}
