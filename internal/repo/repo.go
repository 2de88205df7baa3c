package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"prodcon/internal/domain"
	"prodcon/internal/events"
)

type Repo struct {
	DB     *sql.DB
	Events events.Writer
}

var ErrNotFound = errors.New("not found")

// HasOrchestratedBuild reports whether the build identifier is already in
// durable storage.
func (r Repo) HasOrchestratedBuild(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM orchestrated_builds WHERE orchestrated_build_id=?`, id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveOrchestratedBuild writes the orchestrated build and everything it
// owns in a single transaction. A reader never observes a partial graph.
func (r Repo) SaveOrchestratedBuild(ctx context.Context, b *domain.OrchestratedBuild) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO orchestrated_builds(orchestrated_build_id,build_number,branch,name,is_stable,version_stamp) VALUES (?,?,?,?,?,?)`,
		b.OrchestratedBuildID, b.BuildNumber, b.Branch, nullable(b.Name), b.IsStable, nullable(b.VersionStamp)); err != nil {
		return fmt.Errorf("insert orchestrated build %s: %w", b.OrchestratedBuildID, err)
	}
	for _, build := range b.Builds {
		if _, err := tx.ExecContext(ctx, `INSERT INTO builds(build_id,orchestrated_build_id,name,build_number,branch,product_version,commit_sha) VALUES (?,?,?,?,?,?,?)`,
			build.BuildID, build.OrchestratedBuildID, build.Name, nullable(build.BuildNumber), nullable(build.Branch), nullable(build.ProductVersion), nullable(build.Commit)); err != nil {
			return fmt.Errorf("insert build %s: %w", build.BuildID, err)
		}
	}
	for _, ep := range b.Endpoints {
		if _, err := tx.ExecContext(ctx, `INSERT INTO endpoints(endpoint_id,orchestrated_build_id,local_id,type,url) VALUES (?,?,?,?,?)`,
			ep.EndpointID, b.OrchestratedBuildID, ep.LocalID, nullable(ep.Type), ep.URL); err != nil {
			return fmt.Errorf("insert endpoint %s: %w", ep.EndpointID, err)
		}
	}
	for _, pkg := range b.Packages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO packages(package_id,orchestrated_build_id,local_id,version,non_shipping,origin_build_id) VALUES (?,?,?,?,?,?)`,
			pkg.PackageID, b.OrchestratedBuildID, pkg.LocalID, nullable(pkg.Version), pkg.NonShipping, nullable(pkg.OriginBuildID)); err != nil {
			return fmt.Errorf("insert package %s: %w", pkg.PackageID, err)
		}
		for _, ref := range pkg.Endpoints {
			if _, err := tx.ExecContext(ctx, `INSERT INTO endpoint_refs(endpoint_ref_id,endpoint_id,artifact_url,package_id) VALUES (?,?,?,?)`,
				ref.EndpointRefID, ref.EndpointID, ref.ArtifactURL, pkg.PackageID); err != nil {
				return fmt.Errorf("insert package ref %s: %w", ref.EndpointRefID, err)
			}
		}
	}
	for _, blob := range b.Blobs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO blobs(blob_id,orchestrated_build_id,local_id,type,ship_installer) VALUES (?,?,?,?,?)`,
			blob.BlobID, b.OrchestratedBuildID, blob.LocalID, nullable(blob.Type), nullable(blob.ShipInstaller)); err != nil {
			return fmt.Errorf("insert blob %s: %w", blob.BlobID, err)
		}
		for _, ref := range blob.Endpoints {
			if _, err := tx.ExecContext(ctx, `INSERT INTO endpoint_refs(endpoint_ref_id,endpoint_id,artifact_url,blob_id) VALUES (?,?,?,?)`,
				ref.EndpointRefID, ref.EndpointID, ref.ArtifactURL, blob.BlobID); err != nil {
				return fmt.Errorf("insert blob ref %s: %w", ref.EndpointRefID, err)
			}
		}
	}

	if err := r.Events.Append(ctx, tx, "build.imported", "orchestrated_build", b.OrchestratedBuildID, events.EventPayload{
		"branch":   b.Branch,
		"builds":   len(b.Builds),
		"packages": len(b.Packages),
		"blobs":    len(b.Blobs),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListOrchestratedBuilds returns build summaries (no owned collections),
// optionally filtered by branch.
func (r Repo) ListOrchestratedBuilds(ctx context.Context, branch string) ([]domain.OrchestratedBuild, error) {
	query := `SELECT orchestrated_build_id,build_number,branch,COALESCE(name,''),is_stable,COALESCE(version_stamp,'') FROM orchestrated_builds`
	var args []any
	if branch != "" {
		query += ` WHERE branch=?`
		args = append(args, branch)
	}
	query += ` ORDER BY orchestrated_build_id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OrchestratedBuild
	for rows.Next() {
		var b domain.OrchestratedBuild
		if err := rows.Scan(&b.OrchestratedBuildID, &b.BuildNumber, &b.Branch, &b.Name, &b.IsStable, &b.VersionStamp); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// GetOrchestratedBuild loads one orchestrated build with its full graph.
func (r Repo) GetOrchestratedBuild(ctx context.Context, id string) (*domain.OrchestratedBuild, error) {
	var b domain.OrchestratedBuild
	err := r.DB.QueryRowContext(ctx, `SELECT orchestrated_build_id,build_number,branch,COALESCE(name,''),is_stable,COALESCE(version_stamp,'') FROM orchestrated_builds WHERE orchestrated_build_id=?`, id).
		Scan(&b.OrchestratedBuildID, &b.BuildNumber, &b.Branch, &b.Name, &b.IsStable, &b.VersionStamp)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if b.Builds, err = r.listBuilds(ctx, id); err != nil {
		return nil, err
	}
	if b.Endpoints, err = r.listEndpoints(ctx, id); err != nil {
		return nil, err
	}
	if b.Packages, err = r.listPackages(ctx, id); err != nil {
		return nil, err
	}
	if b.Blobs, err = r.listBlobs(ctx, id); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r Repo) listBuilds(ctx context.Context, id string) ([]domain.Build, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT build_id,orchestrated_build_id,name,COALESCE(build_number,''),COALESCE(branch,''),COALESCE(product_version,''),COALESCE(commit_sha,'') FROM builds WHERE orchestrated_build_id=? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Build
	for rows.Next() {
		var b domain.Build
		if err := rows.Scan(&b.BuildID, &b.OrchestratedBuildID, &b.Name, &b.BuildNumber, &b.Branch, &b.ProductVersion, &b.Commit); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) listEndpoints(ctx context.Context, id string) ([]domain.Endpoint, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT endpoint_id,local_id,COALESCE(type,''),url FROM endpoints WHERE orchestrated_build_id=? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Endpoint
	for rows.Next() {
		var ep domain.Endpoint
		if err := rows.Scan(&ep.EndpointID, &ep.LocalID, &ep.Type, &ep.URL); err != nil {
			return nil, err
		}
		res = append(res, ep)
	}
	return res, rows.Err()
}

func (r Repo) listPackages(ctx context.Context, id string) ([]domain.Package, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT package_id,local_id,COALESCE(version,''),non_shipping,COALESCE(origin_build_id,'') FROM packages WHERE orchestrated_build_id=? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Package
	for rows.Next() {
		var p domain.Package
		if err := rows.Scan(&p.PackageID, &p.LocalID, &p.Version, &p.NonShipping, &p.OriginBuildID); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		refs, err := r.listRefs(ctx, "package_id", res[i].PackageID)
		if err != nil {
			return nil, err
		}
		res[i].Endpoints = refs
	}
	return res, nil
}

func (r Repo) listBlobs(ctx context.Context, id string) ([]domain.Blob, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT blob_id,local_id,COALESCE(type,''),COALESCE(ship_installer,'') FROM blobs WHERE orchestrated_build_id=? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Blob
	for rows.Next() {
		var b domain.Blob
		if err := rows.Scan(&b.BlobID, &b.LocalID, &b.Type, &b.ShipInstaller); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		refs, err := r.listRefs(ctx, "blob_id", res[i].BlobID)
		if err != nil {
			return nil, err
		}
		res[i].Endpoints = refs
	}
	return res, nil
}

func (r Repo) listRefs(ctx context.Context, ownerColumn, ownerID string) ([]domain.EndpointRef, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT endpoint_ref_id,endpoint_id,artifact_url FROM endpoint_refs WHERE `+ownerColumn+`=? ORDER BY rowid`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EndpointRef
	for rows.Next() {
		var ref domain.EndpointRef
		if err := rows.Scan(&ref.EndpointRefID, &ref.EndpointID, &ref.ArtifactURL); err != nil {
			return nil, err
		}
		res = append(res, ref)
	}
	return res, rows.Err()
}

// Stats are per-table row counts for the status command.
type Stats struct {
	OrchestratedBuilds int `json:"orchestrated_builds"`
	Builds             int `json:"builds"`
	Endpoints          int `json:"endpoints"`
	Packages           int `json:"packages"`
	Blobs              int `json:"blobs"`
	EndpointRefs       int `json:"endpoint_refs"`
}

func (r Repo) CountEntities(ctx context.Context) (Stats, error) {
	var s Stats
	counts := []struct {
		table string
		dst   *int
	}{
		{"orchestrated_builds", &s.OrchestratedBuilds},
		{"builds", &s.Builds},
		{"endpoints", &s.Endpoints},
		{"packages", &s.Packages},
		{"blobs", &s.Blobs},
		{"endpoint_refs", &s.EndpointRefs},
	}
	for _, c := range counts {
		if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+c.table).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return s, nil
}

// TailEvents returns the most recent import log entries, newest first.
func (r Repo) TailEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
