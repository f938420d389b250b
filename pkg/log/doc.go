// Package log provides a logging abstraction for recordship components.
//
// This package defines a Logger interface that can be implemented by
// any logging library. Implementations are provided for zerolog and a
// no-op logger for tests and embedders that want silence.
//
// # Usage
//
// Wrap an existing zerolog logger:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//
// Or use the no-op logger:
//
//	logger := log.NewNoopLogger()
//
// Components take a Logger and attach structured fields:
//
//	logger.Info("transaction completed",
//	    log.String("peer", peer),
//	    log.Int("records", n),
//	)
package log
