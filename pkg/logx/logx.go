// Package logx holds the logrus conventions shared by the kelpie binaries.
package logx

import (
	log "github.com/sirupsen/logrus"
)

// DefaultSetup sets the logrus level from a string and switches to the JSON
// formatter
func DefaultSetup(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.JSONFormatter{})
	return nil
}

// LogReturnedErr calls fn and logs its error, if any, with the given fields.
// It is meant for deferred closers whose errors would otherwise be dropped.
func LogReturnedErr(fn func() error, fields log.Fields, msg string) {
	if err := fn(); err != nil {
		entry := log.WithField("error", err)
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		entry.Error(msg)
	}
}
