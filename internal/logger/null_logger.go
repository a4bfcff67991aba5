package logger

import "github.com/sirupsen/logrus"

// discard drops every entry. Fatal does not exit.
type discard struct{}

// NewNullLogger returns a Logger that writes nothing. Components fall back
// to it when the caller passes no logger.
func NewNullLogger() Logger { return discard{} }

func (d discard) WithFields(map[string]interface{}) Logger { return d }
func (d discard) WithField(string, interface{}) Logger     { return d }
func (d discard) WithError(error) Logger                   { return d }

func (discard) Debug(...interface{})             {}
func (discard) Info(...interface{})              {}
func (discard) Warn(...interface{})              {}
func (discard) Error(...interface{})             {}
func (discard) Fatal(...interface{})             {}
func (discard) Log(logrus.Level, ...interface{}) {}
func (discard) Debugf(string, ...interface{})    {}
func (discard) Infof(string, ...interface{})     {}
func (discard) Warnf(string, ...interface{})     {}
func (discard) Errorf(string, ...interface{})    {}
