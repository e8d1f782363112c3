package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Team is a tenant.
type Team struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	WorkspacePath string    `json:"workspace_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// User is an account.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership binds a user to a team with a role.
type Membership struct {
	UserID string `json:"user_id"`
	TeamID string `json:"team_id"`
	Role   string `json:"role"` // owner | admin | member
}

// Project is a team project whose path must sit under the configured
// allow-list of roots.
type Project struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Path      string    `json:"path"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// SkillRow is one enabled team skill; ordering is by id.
type SkillRow struct {
	ID        int64     `json:"id"`
	TeamID    string    `json:"team_id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *SQLStore) CreateTeam(ctx context.Context, name, workspacePath string) (*Team, error) {
	t := &Team{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Name:          name,
		WorkspacePath: workspacePath,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.exec(ctx,
		`INSERT INTO teams (id, name, workspace_path, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, t.WorkspacePath, encodeTime(t.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	return t, nil
}

func (s *SQLStore) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	var t Team
	var created string
	err := s.queryRow(ctx,
		`SELECT id, name, workspace_path, created_at FROM teams WHERE id = ?`, teamID).
		Scan(&t.ID, &t.Name, &t.WorkspacePath, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	t.CreatedAt = decodeTime(created)
	return &t, nil
}

func (s *SQLStore) ListTeams(ctx context.Context) ([]*Team, error) {
	rows, err := s.query(ctx, `SELECT id, name, workspace_path, created_at FROM teams ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()
	var out []*Team
	for rows.Next() {
		var t Team
		var created string
		if err := rows.Scan(&t.ID, &t.Name, &t.WorkspacePath, &created); err != nil {
			return nil, err
		}
		t.CreatedAt = decodeTime(created)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateUser(ctx context.Context, email, displayName string) (*User, error) {
	u := &User{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.exec(ctx,
		`INSERT INTO users (id, email, display_name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, encodeTime(u.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) AddMember(ctx context.Context, userID, teamID, role string) error {
	switch role {
	case "owner", "admin", "member":
	default:
		return fmt.Errorf("invalid role %q", role)
	}
	_, err := s.exec(ctx, `
		INSERT INTO memberships (user_id, team_id, role, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, team_id) DO UPDATE SET role = excluded.role`,
		userID, teamID, role, encodeTime(time.Now()))
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// MemberRole returns the user's role in the team, or ErrNotFound.
func (s *SQLStore) MemberRole(ctx context.Context, userID, teamID string) (string, error) {
	var role string
	err := s.queryRow(ctx,
		`SELECT role FROM memberships WHERE user_id = ? AND team_id = ?`, userID, teamID).
		Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("member role: %w", err)
	}
	return role, nil
}

// CreateProject validates the path against the allow-list roots first.
func (s *SQLStore) CreateProject(ctx context.Context, teamID, name, slug, path string, allowRoots []string) (*Project, error) {
	if !pathAllowed(path, allowRoots) {
		return nil, fmt.Errorf("project path %s is outside the allowed roots", path)
	}
	p := &Project{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TeamID:    teamID,
		Name:      name,
		Slug:      slug,
		Path:      path,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.exec(ctx, `
		INSERT INTO team_projects (id, team_id, name, slug, path, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TeamID, p.Name, p.Slug, p.Path, p.Enabled, encodeTime(p.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

func pathAllowed(path string, roots []string) bool {
	if len(roots) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if abs == rootAbs || strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// GetProject fetches a project in the team, or ErrNotFound. Disabled
// projects are returned too; callers check Enabled.
func (s *SQLStore) GetProject(ctx context.Context, teamID, projectID string) (*Project, error) {
	var p Project
	var created string
	err := s.queryRow(ctx, `
		SELECT id, team_id, name, slug, path, enabled, created_at
		FROM team_projects WHERE id = ? AND team_id = ?`, projectID, teamID).
		Scan(&p.ID, &p.TeamID, &p.Name, &p.Slug, &p.Path, &p.Enabled, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	p.CreatedAt = decodeTime(created)
	return &p, nil
}

func (s *SQLStore) ListProjects(ctx context.Context, teamID string) ([]*Project, error) {
	rows, err := s.query(ctx, `
		SELECT id, team_id, name, slug, path, enabled, created_at
		FROM team_projects WHERE team_id = ? ORDER BY created_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []*Project
	for rows.Next() {
		var p Project
		var created string
		if err := rows.Scan(&p.ID, &p.TeamID, &p.Name, &p.Slug, &p.Path, &p.Enabled, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = decodeTime(created)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateSkill(ctx context.Context, teamID, name, content string) (*SkillRow, error) {
	sk := &SkillRow{
		ID:        time.Now().UnixNano(),
		TeamID:    teamID,
		Name:      name,
		Content:   content,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.exec(ctx, `
		INSERT INTO team_skills (id, team_id, name, content, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sk.ID, sk.TeamID, sk.Name, sk.Content, sk.Enabled, encodeTime(sk.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create skill: %w", err)
	}
	return sk, nil
}

// ListEnabledSkills returns the team's enabled skills ordered by id.
func (s *SQLStore) ListEnabledSkills(ctx context.Context, teamID string) ([]*SkillRow, error) {
	rows, err := s.query(ctx, `
		SELECT id, team_id, name, content, enabled, created_at
		FROM team_skills WHERE team_id = ? AND enabled ORDER BY id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()
	var out []*SkillRow
	for rows.Next() {
		var sk SkillRow
		var created string
		if err := rows.Scan(&sk.ID, &sk.TeamID, &sk.Name, &sk.Content, &sk.Enabled, &created); err != nil {
			return nil, err
		}
		sk.CreatedAt = decodeTime(created)
		out = append(out, &sk)
	}
	return out, rows.Err()
}
