// internal/database/stores_test.go
package database_test

import (
	"github.com/jason-s-yu/dicehall/internal/database"
	"github.com/jason-s-yu/dicehall/internal/game"
)

var (
	_ game.Store          = (*database.SQLite)(nil)
	_ game.LobbyDirectory = (*database.SQLite)(nil)
	_ game.Store          = (*database.Postgres)(nil)
	_ game.LobbyDirectory = (*database.Postgres)(nil)
)
