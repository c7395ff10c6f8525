package probe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/HerbHall/opsconductor/pkg/models"
)

func (p *Prober) probeMySQL(ctx context.Context, req *Request, _ Mode) *Result {
	if res := requireCredential(req); res != nil {
		return res
	}

	cfg := mysql.NewConfig()
	cfg.User = req.Credential.Username
	cfg.Passwd = req.Credential.Secret()
	cfg.Net = "tcp"
	cfg.Addr = hostPort(req)
	cfg.DBName = models.ConfigString(req.Config, "database")
	cfg.Timeout = req.Timeout
	cfg.ReadTimeout = req.Timeout
	cfg.WriteTimeout = req.Timeout

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return failure(KindConfig, "invalid MySQL configuration: %v", err)
	}
	db := sql.OpenDB(connector)
	defer db.Close()

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return classifyDBError("MySQL", err).withLatency(start)
	}

	var version string
	_ = db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version)
	res := success("MySQL authentication successful as %s", cfg.User).withLatency(start)
	if version != "" {
		res.with("server_version", version)
	}
	return res
}

func (p *Prober) probePostgreSQL(ctx context.Context, req *Request, _ Mode) *Result {
	if res := requireCredential(req); res != nil {
		return res
	}

	sslmode := models.ConfigString(req.Config, "sslmode")
	if sslmode == "" {
		sslmode = "prefer"
	}
	database := models.ConfigString(req.Config, "database")
	if database == "" {
		database = "postgres"
	}
	q := url.Values{}
	q.Set("sslmode", sslmode)
	q.Set("connect_timeout", strconv.Itoa(max(1, int(req.Timeout/time.Second))))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(req.Credential.Username, req.Credential.Secret()),
		Host:     hostPort(req),
		Path:     "/" + database,
		RawQuery: q.Encode(),
	}

	cfg, err := pgx.ParseConfig(u.String())
	if err != nil {
		return failure(KindConfig, "invalid PostgreSQL configuration: %v", err)
	}

	start := time.Now()
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return classifyDBError("PostgreSQL", err).withLatency(start)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if err := conn.Ping(ctx); err != nil {
		return classifyDBError("PostgreSQL", err).withLatency(start)
	}
	return success("PostgreSQL authentication successful as %s", req.Credential.Username).
		withLatency(start).
		with("server_version", conn.PgConn().ParameterStatus("server_version"))
}

func (p *Prober) probeRedis(ctx context.Context, req *Request, _ Mode) *Result {
	opts := &redis.Options{
		Addr:         hostPort(req),
		DB:           models.ConfigInt(req.Config, "database"),
		DialTimeout:  req.Timeout,
		ReadTimeout:  req.Timeout,
		WriteTimeout: req.Timeout,
		MaxRetries:   -1,
	}
	if cred := req.Credential; cred != nil {
		opts.Password = cred.Secret()
		// Redis 6 ACL users authenticate with AUTH <user> <pass>; older
		// servers only understand AUTH <pass>.
		if models.ConfigBool(req.Config, "acl", false) {
			opts.Username = cred.Username
		}
	}

	client := redis.NewClient(opts)
	defer client.Close()

	start := time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		return classifyDBError("Redis", err).withLatency(start)
	}
	return success("Redis PING successful").withLatency(start)
}

// probeSQLite opens the file read-only and reads the schema. A missing file
// is reported rather than created.
func (p *Prober) probeSQLite(ctx context.Context, req *Request, _ Mode) *Result {
	path := models.ConfigString(req.Config, "database_path")
	if path == "" {
		path = req.Host
	}
	if path == "" {
		return failure(KindConfig, "sqlite method has no database_path")
	}

	start := time.Now()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return failure(KindConfig, "SQLite database file %s does not exist", path)
		}
		return failure(KindConfig, "cannot access SQLite database file %s: %v", path, err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return failure(KindConfig, "open SQLite database %s: %v", path, err)
	}
	defer db.Close()

	var tables int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'").Scan(&tables); err != nil {
		return failure(KindProtocol, "SQLite database %s is not readable: %v", path, err).withLatency(start)
	}
	return success("SQLite database %s is readable", path).
		withLatency(start).
		with("table_count", tables)
}

func classifyDBError(what string, err error) *Result {
	var (
		myErr *mysql.MySQLError
		pgErr *pgconn.PgError
	)
	switch {
	case errors.As(err, &myErr) && (myErr.Number == 1045 || myErr.Number == 1044):
		return failure(KindAuth, "%s authentication failed: %s", what, myErr.Message)
	case errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "28"):
		return failure(KindAuth, "%s authentication failed: %s", what, pgErr.Message)
	case errors.As(err, &pgErr):
		return failure(KindProtocol, "%s error %s: %s", what, pgErr.Code, pgErr.Message)
	}

	msg := err.Error()
	if strings.Contains(msg, "WRONGPASS") || strings.Contains(msg, "NOAUTH") || strings.Contains(msg, "invalid password") {
		return failure(KindAuth, "%s authentication failed: %s", what, msg)
	}
	return netFailure(fmt.Sprintf("%s connection failed", what), err)
}
