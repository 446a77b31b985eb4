package repo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

// 运维账号，只用于登录拿管理 token；没有注册入口。
type UsersRepo struct {
	db *pgxpool.Pool
}

func NewUsersRepo(db *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{db: db}
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
}

func (u *UsersRepo) FindByUsername(ctx context.Context, username string) (User, error) {
	username = strings.TrimSpace(username)
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	row := u.db.QueryRow(dbctx, "SELECT id, username, password_hash, role FROM users WHERE username=$1 LIMIT 1", username)
	var user User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		slog.Error(err.Error())
		return User{}, err
	}
	return user, nil
}

// EnsureAdmin 用配置里的 bcrypt 哈希创建或更新管理员账号。
func (u *UsersRepo) EnsureAdmin(ctx context.Context, username, passwordHash string) (int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := u.db.QueryRow(dbctx, `
INSERT INTO users (username, password_hash, role) VALUES ($1,$2,'admin')
ON CONFLICT (username) DO UPDATE SET password_hash=EXCLUDED.password_hash, role='admin'
RETURNING id`, strings.TrimSpace(username), passwordHash).Scan(&id)
	if err != nil {
		slog.Error(err.Error())
		return 0, err
	}
	return id, nil
}
