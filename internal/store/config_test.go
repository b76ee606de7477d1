package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	cfg := Config{Password: "secret", MaxConns: 30, MinConns: 10}
	assert.NoError(t, cfg.Validate())

	missingPassword := Config{MaxConns: 30, MinConns: 10}
	assert.Error(t, missingPassword.Validate())

	minExceedsMax := Config{Password: "secret", MaxConns: 5, MinConns: 10}
	assert.Error(t, minExceedsMax.Validate())

	zeroMax := Config{Password: "secret", MaxConns: 0}
	assert.Error(t, zeroMax.Validate())
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		Host: "db", Port: 5432, User: "emergence", Password: "pw",
		Database: "emergence", SSLMode: "disable",
	}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "dbname=emergence")
	assert.Contains(t, dsn, "sslmode=disable")
}
