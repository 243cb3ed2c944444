package db

import (
	"log"

	"ledger-cms/internal/domain"

	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate() {
	if err := MigrateModels(AppDb); err != nil {
		log.Fatal(err)
	}

	log.Println("Database schema migrated successfully")
}

// MigrateModels creates every live table and its revision table.
func MigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Node{},
		&domain.NodeRevision{},
		&domain.ContentType{},
		&domain.ContentTypeRevision{},
		&domain.User{},
		&domain.UserRevision{},
		&domain.Article{},
		&domain.ArticleRevision{},
		&domain.Site{},
		&domain.SiteRevision{},
	)
}
