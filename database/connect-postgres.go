// Package database stores an audit log of received events and the replies the
// bot generated for them.
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/Soypete/twitch-event-bot/logging"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

type Postgres struct {
	connections *sqlx.DB
	logger      *logging.Logger
}

//go:embed migrations/*.sql
var embedMigrations embed.FS

// NewPostgres connects to dbURL and migrates the schema up.
func NewPostgres(dbURL string, logger *logging.Logger) (*Postgres, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("database")
	if dbURL == "" {
		return nil, errors.New("postgres url is empty")
	}

	logger.Info("connecting to postgres database")
	dbx, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Error("error connecting to postgres", "error", err.Error())
		return nil, fmt.Errorf("error connecting to postgres: %w", err)
	}

	logger.Debug("setting up migration system")
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("error setting dialect", "error", err.Error())
		_ = dbx.Close()
		return nil, fmt.Errorf("error setting dialect: %w", err)
	}

	logger.Info("running database migrations")
	if err := goose.Up(dbx.DB, "migrations"); err != nil {
		logger.Error("error running migrations", "error", err.Error())
		_ = dbx.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	logger.Info("database connection established successfully")
	return &Postgres{
		connections: dbx,
		logger:      logger,
	}, nil
}

func (p *Postgres) Close() {
	p.logger.Info("closing postgres connection")
	if err := p.connections.Close(); err != nil {
		p.logger.Warn("error closing postgres connection", "error", err.Error())
	}
}
