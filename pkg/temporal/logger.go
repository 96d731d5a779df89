package temporal

import "go.uber.org/zap"

// ZapAdapter routes Temporal SDK logging through zap. Sugared, because the
// SDK hands over loose keyvals rather than typed fields.
type ZapAdapter struct{ *zap.SugaredLogger }

func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger.Sugar()}
}

func (z *ZapAdapter) Debug(msg string, keyvals ...interface{}) { z.Debugw(msg, keyvals...) }
func (z *ZapAdapter) Info(msg string, keyvals ...interface{})  { z.Infow(msg, keyvals...) }
func (z *ZapAdapter) Warn(msg string, keyvals ...interface{})  { z.Warnw(msg, keyvals...) }
func (z *ZapAdapter) Error(msg string, keyvals ...interface{}) { z.Errorw(msg, keyvals...) }
