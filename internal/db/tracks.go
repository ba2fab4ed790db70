package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sidescan/internal/catalog"
	"github.com/banshee-data/sidescan/internal/sonar"
)

// ErrTrackNotFound is returned when a named track does not exist in the
// project.
var ErrTrackNotFound = errors.New("track not found")

// Project is a handle bound to one project row.
type Project struct {
	db   *DB
	ID   int64
	Name string
}

// EnsureProject returns the project with the given name, creating it when
// it does not exist.
func (db *DB) EnsureProject(name string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("project name is empty")
	}
	_, err := db.Exec(
		`INSERT INTO projects (name, created_unix_nano) VALUES (?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		name, time.Now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	p := &Project{db: db, Name: name}
	if err := db.QueryRow(`SELECT project_id FROM projects WHERE name = ?`, name).Scan(&p.ID); err != nil {
		return nil, fmt.Errorf("load project %q: %w", name, err)
	}
	return p, nil
}

// Projects lists all project names in creation order.
func (db *DB) Projects() ([]string, error) {
	rows, err := db.Query(`SELECT name FROM projects ORDER BY created_unix_nano, project_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// TrackCount returns how many tracks the project holds.
func (p *Project) TrackCount() (int, error) {
	var n int
	err := p.db.QueryRow(`SELECT COUNT(*) FROM tracks WHERE project_id = ?`, p.ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}
	return n, nil
}

// CreateTrack inserts a new track and returns its generated id.
func (p *Project) CreateTrack(name string, created time.Time) (string, error) {
	id := uuid.NewString()
	_, err := p.db.Exec(
		`INSERT INTO tracks (track_id, project_id, name, created_unix_nano) VALUES (?, ?, ?, ?)`,
		id, p.ID, name, created.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("create track %q: %w", name, err)
	}
	return id, nil
}

// MarkSource records which kinds of data exist for one board of a track.
func (p *Project) MarkSource(track string, src sonar.Source, info catalog.SourceInfo) error {
	var id string
	err := p.db.QueryRow(
		`SELECT track_id FROM tracks WHERE project_id = ? AND name = ?`, p.ID, track,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", ErrTrackNotFound, track)
	}
	if err != nil {
		return err
	}
	_, err = p.db.Exec(
		`INSERT INTO track_sources (track_id, source, raw, computed, updated_unix_nano)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (track_id, source) DO UPDATE SET
		   raw = excluded.raw,
		   computed = excluded.computed,
		   updated_unix_nano = excluded.updated_unix_nano`,
		id, src.String(), info.Raw, info.Computed, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("mark %s data of %q: %w", src, track, err)
	}
	return nil
}

// Tracks returns every track of the project with its per-board data flags,
// newest first.
func (p *Project) Tracks() ([]catalog.TrackInfo, error) {
	rows, err := p.db.Query(
		`SELECT t.name, t.created_unix_nano, s.source, s.raw, s.computed
		 FROM tracks t
		 LEFT JOIN track_sources s ON s.track_id = t.track_id
		 WHERE t.project_id = ?
		 ORDER BY t.created_unix_nano DESC, t.name`,
		p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []catalog.TrackInfo
	index := make(map[string]int)
	for rows.Next() {
		var (
			name     string
			created  int64
			source   sql.NullString
			raw      sql.NullBool
			computed sql.NullBool
		)
		if err := rows.Scan(&name, &created, &source, &raw, &computed); err != nil {
			return nil, err
		}
		i, ok := index[name]
		if !ok {
			i = len(tracks)
			index[name] = i
			tracks = append(tracks, catalog.TrackInfo{
				Name:    name,
				Created: time.Unix(0, created).UTC(),
				Sources: make(map[sonar.Source]catalog.SourceInfo, 2),
			})
		}
		if !source.Valid {
			continue
		}
		src, err := sonar.ParseSource(source.String)
		if err != nil {
			return nil, err
		}
		tracks[i].Sources[src] = catalog.SourceInfo{Raw: raw.Bool, Computed: computed.Bool}
	}
	return tracks, rows.Err()
}

// Fingerprint summarises the project's tracks and their data flags. It
// changes whenever a track is added or removed or its data changes.
func (p *Project) Fingerprint() (string, error) {
	var (
		count   int
		created sql.NullInt64
		updated sql.NullInt64
		flags   sql.NullInt64
	)
	err := p.db.QueryRow(
		`SELECT COUNT(DISTINCT t.track_id),
		        MAX(t.created_unix_nano),
		        MAX(s.updated_unix_nano),
		        SUM(s.raw + 2 * s.computed)
		 FROM tracks t
		 LEFT JOIN track_sources s ON s.track_id = t.track_id
		 WHERE t.project_id = ?`,
		p.ID,
	).Scan(&count, &created, &updated, &flags)
	if err != nil {
		return "", fmt.Errorf("fingerprint tracks: %w", err)
	}
	return fmt.Sprintf("%d/%d/%d/%d", count, created.Int64, updated.Int64, flags.Int64), nil
}
