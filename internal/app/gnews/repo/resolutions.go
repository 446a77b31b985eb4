package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/app/gnews/cache"
)

const resolutionColumns = "id, source_url, resolved_url, method, status, content_type, image_url, image_checked, resolved_at"

type ResolutionsRepo struct {
	db    *pgxpool.Pool
	bloom *cache.SourceFilter // 可为 nil
}

func NewResolutionsRepo(db *pgxpool.Pool, bloom *cache.SourceFilter) *ResolutionsRepo {
	return &ResolutionsRepo{db: db, bloom: bloom}
}

// Upsert 按 source_url 幂等写入：已存在就用新的结果覆盖，并把 id 回填到 r.ID。
func (s *ResolutionsRepo) Upsert(ctx context.Context, r *gnews.Resolution) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if r.ResolvedAt.IsZero() {
		r.ResolvedAt = time.Now().UTC()
	}
	err := s.db.QueryRow(dbctx, `
INSERT INTO resolutions (source_url, resolved_url, method, status, content_type, image_url, image_checked, resolved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (source_url) DO UPDATE SET
  resolved_url=EXCLUDED.resolved_url,
  method=EXCLUDED.method,
  status=EXCLUDED.status,
  content_type=EXCLUDED.content_type,
  image_url=CASE WHEN EXCLUDED.image_url <> '' THEN EXCLUDED.image_url ELSE resolutions.image_url END,
  image_checked=EXCLUDED.image_checked OR resolutions.image_checked,
  resolved_at=EXCLUDED.resolved_at
RETURNING id`,
		r.SourceURL, r.ResolvedURL, string(r.Method), r.Status, r.ContentType, r.ImageURL, r.ImageChecked, r.ResolvedAt,
	).Scan(&r.ID)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	if s.bloom != nil {
		s.bloom.Add(r.SourceURL)
	}
	return nil
}

// FindBySource 布隆过滤器说"一定没有"时直接返回，不查库。
func (s *ResolutionsRepo) FindBySource(ctx context.Context, sourceURL string) (*gnews.Resolution, error) {
	if s.bloom != nil && !s.bloom.MightContain(sourceURL) {
		return nil, gnews.ErrNotFound
	}
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return scanOne(s.db.QueryRow(dbctx, "SELECT "+resolutionColumns+" FROM resolutions WHERE source_url=$1", sourceURL))
}

func (s *ResolutionsRepo) FindByID(ctx context.Context, id int64) (*gnews.Resolution, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return scanOne(s.db.QueryRow(dbctx, "SELECT "+resolutionColumns+" FROM resolutions WHERE id=$1", id))
}

// Page 是按 id 倒序的游标分页结果。
type Page struct {
	Items      []gnews.Resolution
	NextCursor *int64
}

// ListRecent cursor 为 0 表示第一页。
func (s *ResolutionsRepo) ListRecent(ctx context.Context, limit int, cursor int64) (*Page, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var rows pgx.Rows
	var err error
	if cursor == 0 {
		rows, err = s.db.Query(dbctx, "SELECT "+resolutionColumns+" FROM resolutions ORDER BY id DESC LIMIT $1", limit)
	} else {
		rows, err = s.db.Query(dbctx, "SELECT "+resolutionColumns+" FROM resolutions WHERE id<$1 ORDER BY id DESC LIMIT $2", cursor, limit)
	}
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	page := &Page{Items: make([]gnews.Resolution, 0, limit)}
	for rows.Next() {
		var r gnews.Resolution
		var method string
		if err := rows.Scan(&r.ID, &r.SourceURL, &r.ResolvedURL, &method, &r.Status, &r.ContentType, &r.ImageURL, &r.ImageChecked, &r.ResolvedAt); err != nil {
			slog.Error(err.Error())
			return nil, err
		}
		r.Method = gnews.Method(method)
		page.Items = append(page.Items, r)
	}
	if err := rows.Err(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	if limit > 0 && len(page.Items) == limit {
		next := page.Items[len(page.Items)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

// Delete 返回被删除记录的 source_url，调用方用它清缓存。
func (s *ResolutionsRepo) Delete(ctx context.Context, id int64) (string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var sourceURL string
	err := s.db.QueryRow(dbctx, "DELETE FROM resolutions WHERE id=$1 RETURNING source_url", id).Scan(&sourceURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", gnews.ErrNotFound
		}
		slog.Error(err.Error())
		return "", err
	}
	return sourceURL, nil
}

// WarmBloom 启动时把已有的 source_url 灌进布隆过滤器。
func (s *ResolutionsRepo) WarmBloom(ctx context.Context) (int, error) {
	if s.bloom == nil {
		return 0, nil
	}
	rows, err := s.db.Query(ctx, "SELECT source_url FROM resolutions")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return n, err
		}
		s.bloom.Add(u)
		n++
	}
	return n, rows.Err()
}

func scanOne(row pgx.Row) (*gnews.Resolution, error) {
	var r gnews.Resolution
	var method string
	if err := row.Scan(&r.ID, &r.SourceURL, &r.ResolvedURL, &method, &r.Status, &r.ContentType, &r.ImageURL, &r.ImageChecked, &r.ResolvedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gnews.ErrNotFound
		}
		slog.Error(err.Error())
		return nil, err
	}
	r.Method = gnews.Method(method)
	return &r, nil
}
