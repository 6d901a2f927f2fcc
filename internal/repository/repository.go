package repository

import (
	"gorm.io/gorm"

	"github.com/axidi/photoai-bot/utils"
)

type Repository struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewRepository(db *gorm.DB, logger *utils.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// orDB возвращает открытую транзакцию, если она передана, иначе общий пул.
func (r *Repository) orDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
