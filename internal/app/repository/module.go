package repository

import (
	cfgpkg "github.com/fatflowers/smmpay/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// New selects the store implementation once at startup.
func New(cfg *cfgpkg.Config, log *zap.SugaredLogger, db *gorm.DB) Repository {
	if cfg.Storage.Driver == cfgpkg.StorageDriverMemory || db == nil {
		log.Warnw("using in-memory repository, data is lost on restart")
		return NewMemoryRepository()
	}
	return NewGormRepository(db)
}

var Module = fx.Options(
	fx.Provide(New),
)
