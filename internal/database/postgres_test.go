package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDBConfig_DSN(t *testing.T) {
	cfg := &DBConfig{Host: "db", Port: "5433", User: "app", Password: "secret", Name: "savings", SSLMode: "require"}

	assert.Equal(t, "host=db port=5433 user=app password=secret dbname=savings sslmode=require", cfg.DSN())
}
