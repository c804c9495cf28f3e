package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/fingerprint"
)

const projectColumns = `id, name,
	original_url, original_asset_id,
	marker_url, marker_asset_id,
	video_url, video_asset_id,
	phash, dhash, grid, descriptor, contrast, created_at`

// ProjectRepository provides SQL-backed project storage
type ProjectRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewProjectRepository creates a repository over an open connection pool
func NewProjectRepository(db *sql.DB, d Dialect) *ProjectRepository {
	return &ProjectRepository{db: db, dialect: d}
}

// placeholders returns "p1, p2, ..., pn" in the repository's dialect.
func (r *ProjectRepository) placeholders(n int) string {
	ph := make([]string, n)
	for i := range n {
		ph[i] = r.dialect.Placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

// GetProject retrieves a project by id, returns nil if not found
func (r *ProjectRepository) GetProject(ctx context.Context, id string) (*database.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects WHERE id = %s", projectColumns, r.dialect.Placeholder(1))

	p, err := r.scanProject(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects ordered by creation time, then id
func (r *ProjectRepository) ListProjects(ctx context.Context) ([]database.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects ORDER BY created_at, id", projectColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []database.Project
	for rows.Next() {
		p, err := r.scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// SaveProject inserts a new project
func (r *ProjectRepository) SaveProject(ctx context.Context, p database.Project) error {
	query := fmt.Sprintf("INSERT INTO projects (%s) VALUES (%s)", projectColumns, r.placeholders(14))

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name,
		p.OriginalImage.URL, p.OriginalImage.AssetID,
		p.MarkerImage.URL, p.MarkerImage.AssetID,
		p.Video.URL, p.Video.AssetID,
		// BIGINT columns are signed; the hash bits round-trip through int64.
		int64(p.Features.PHash), int64(p.Features.DHash),
		p.Features.MarshalGrid(),
		r.dialect.VectorValue(p.Features.Descriptor),
		p.Features.Contrast,
		p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// DeleteProject removes a project, reporting whether it existed
func (r *ProjectRepository) DeleteProject(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf("DELETE FROM projects WHERE id = %s", r.dialect.Placeholder(1))

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete project rows affected: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of stored projects
func (r *ProjectRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&count); err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ProjectRepository) scanProject(row rowScanner) (*database.Project, error) {
	var (
		p            database.Project
		pHash, dHash int64
		grid         []byte
		createdAt    int64
	)
	vec := r.dialect.VectorScanner()

	err := row.Scan(
		&p.ID, &p.Name,
		&p.OriginalImage.URL, &p.OriginalImage.AssetID,
		&p.MarkerImage.URL, &p.MarkerImage.AssetID,
		&p.Video.URL, &p.Video.AssetID,
		&pHash, &dHash, &grid, vec, &p.Features.Contrast, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	p.OriginalImage.Kind = database.AssetImage
	p.MarkerImage.Kind = database.AssetImage
	p.Video.Kind = database.AssetVideo
	p.Features.PHash = uint64(pHash)
	p.Features.DHash = uint64(dHash)
	if err := p.Features.UnmarshalGrid(grid); err != nil {
		return nil, err
	}
	p.Features.Descriptor = vec.Slice()
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	return &p, nil
}

// BlobVector stores a descriptor as a little-endian float32 blob, for
// backends without a native vector type.
type BlobVector struct {
	vec []float32
}

// Scan implements sql.Scanner.
func (b *BlobVector) Scan(src any) error {
	data, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported descriptor column type %T", src)
	}
	v, err := fingerprint.DecodeVector(data)
	if err != nil {
		return err
	}
	b.vec = v
	return nil
}

// Slice returns the scanned descriptor.
func (b *BlobVector) Slice() []float32 {
	return b.vec
}
