package app

import (
	"database/sql"

	"teamline/internal/config"
	"teamline/internal/db"
	"teamline/internal/engine"
	"teamline/internal/migrate"
	"teamline/internal/repo"
)

// Context bundles the opened workspace: database, repo, engine, config.
type Context struct {
	DB     *sql.DB
	Repo   repo.Repo
	Engine engine.Engine
	Config *config.Config
}

// Open prepares a workspace end to end: directory, database, migrations,
// config, engine wiring.
func Open(workspace string) (*Context, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Engine: engine.New(repo.NewStore(conn), cfg),
		Config: cfg,
	}, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}
