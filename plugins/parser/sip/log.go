package sip

import (
	gosiplog "github.com/ghettovoice/gosip/log"

	"firestige.xyz/flowtap/internal/log"
)

// logAdapter lets gosip log through the process logger. The level is owned
// by the process logger, so SetLevel is ignored.
type logAdapter struct {
	logger log.Logger
	prefix string
	fields map[string]interface{}
}

func newLogAdapter(l log.Logger) *logAdapter {
	return &logAdapter{logger: l.WithField("component", "gosip")}
}

func (la *logAdapter) Fields() gosiplog.Fields {
	fields := make(gosiplog.Fields, len(la.fields))
	for k, v := range la.fields {
		fields[k] = v
	}
	return fields
}

func (la *logAdapter) WithFields(fields map[string]interface{}) gosiplog.Logger {
	merged := make(map[string]interface{}, len(la.fields)+len(fields))
	for k, v := range la.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &logAdapter{logger: la.logger.WithFields(fields), prefix: la.prefix, fields: merged}
}

func (la *logAdapter) Prefix() string {
	return la.prefix
}

func (la *logAdapter) WithPrefix(prefix string) gosiplog.Logger {
	return &logAdapter{logger: la.logger.WithField("prefix", prefix), prefix: prefix, fields: la.fields}
}

func (la *logAdapter) SetLevel(level uint32) {}

func (la *logAdapter) Print(args ...interface{})                 { la.logger.Print(args...) }
func (la *logAdapter) Printf(format string, args ...interface{}) { la.logger.Printf(format, args...) }
func (la *logAdapter) Trace(args ...interface{})                 { la.logger.Trace(args...) }
func (la *logAdapter) Tracef(format string, args ...interface{}) { la.logger.Tracef(format, args...) }
func (la *logAdapter) Debug(args ...interface{})                 { la.logger.Debug(args...) }
func (la *logAdapter) Debugf(format string, args ...interface{}) { la.logger.Debugf(format, args...) }
func (la *logAdapter) Info(args ...interface{})                  { la.logger.Info(args...) }
func (la *logAdapter) Infof(format string, args ...interface{})  { la.logger.Infof(format, args...) }
func (la *logAdapter) Warn(args ...interface{})                  { la.logger.Warn(args...) }
func (la *logAdapter) Warnf(format string, args ...interface{})  { la.logger.Warnf(format, args...) }
func (la *logAdapter) Error(args ...interface{})                 { la.logger.Error(args...) }
func (la *logAdapter) Errorf(format string, args ...interface{}) { la.logger.Errorf(format, args...) }
func (la *logAdapter) Fatal(args ...interface{})                 { la.logger.Fatal(args...) }
func (la *logAdapter) Fatalf(format string, args ...interface{}) { la.logger.Fatalf(format, args...) }
func (la *logAdapter) Panic(args ...interface{})                 { la.logger.Panic(args...) }
func (la *logAdapter) Panicf(format string, args ...interface{}) { la.logger.Panicf(format, args...) }
