package activation

import (
	"github.com/bnema/slotwall/internal/domain"
	"github.com/bnema/slotwall/internal/ports"
	"go.uber.org/zap"
)

// Log reports slot changes to a zap logger instead of driving real resources.
type Log struct {
	logger *zap.Logger
}

var _ ports.Activator = (*Log)(nil)

func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("activator")}
}

func (l *Log) Activate(slot domain.SlotIndex, item domain.ItemID) {
	l.logger.Info("activate slot", zap.Int("slot", int(slot)), zap.String("item", string(item)))
}

func (l *Log) Deactivate(slot domain.SlotIndex) {
	l.logger.Info("deactivate slot", zap.Int("slot", int(slot)))
}

func (l *Log) SetVisible(slot domain.SlotIndex, visible bool) {
	l.logger.Info("set slot visibility", zap.Int("slot", int(slot)), zap.Bool("visible", visible))
}
