package db

import (
	"log"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Open picks the driver from the DSN shape: "file:..." and ":memory:"
// DSNs go to sqlite, everything else is treated as a MySQL DSN.
func Open(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

func Connect(dsn string) *gorm.DB {
	gdb, err := Open(dsn)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}
