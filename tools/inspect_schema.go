package main

import (
	"fmt"
	"log"

	"github.com/localnerve/reportdesk/internal/config"
	"github.com/localnerve/reportdesk/internal/database"
	"github.com/localnerve/reportdesk/internal/logging"
)

// Prints the tables GORM creates for the database backend
func main() {
	db, err := database.Connect(&config.Config{DBType: "sqlite-purego", DBDatabase: ":memory:", LogLevel: "error"}, logging.Nop())
	if err != nil {
		log.Fatal(err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatal(err)
	}

	var tables []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name").Scan(&tables)

	for _, table := range tables {
		fmt.Printf("\n=== Table: %s ===\n", table)
		var schema string
		db.Raw("SELECT sql FROM sqlite_master WHERE name = ?", table).Scan(&schema)
		fmt.Println(schema)
	}
}
