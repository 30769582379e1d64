package bindkit

import "go.uber.org/zap"

// events emits structured lifecycle logs. The logger defaults to a no-op;
// applications opt in through Options.Logger.
type events struct {
	log *zap.Logger
}

func newEvents(log *zap.Logger) *events {
	if log == nil {
		log = zap.NewNop()
	}
	return &events{log: log}
}

func (e *events) injectorBuilt(id string, parent string, stage Stage, bindings int) {
	e.log.Debug("injector built",
		zap.String("injector", id),
		zap.String("parent", parent),
		zap.Stringer("stage", stage),
		zap.Int("bindings", bindings),
	)
}

func (e *events) jitSynthesized(id string, key Key) {
	e.log.Debug("just-in-time binding synthesized",
		zap.String("injector", id),
		zap.Stringer("key", key),
	)
}

func (e *events) eagerConstructed(id string, key Key) {
	e.log.Debug("eager singleton constructed",
		zap.String("injector", id),
		zap.Stringer("key", key),
	)
}

func (e *events) provisionFailed(id string, key Key, err error) {
	e.log.Debug("provision failed",
		zap.String("injector", id),
		zap.Stringer("key", key),
		zap.Error(err),
	)
}

func (e *events) delegatedToParent(id string, key Key) {
	e.log.Debug("key delegated to parent injector",
		zap.String("injector", id),
		zap.Stringer("key", key),
	)
}
