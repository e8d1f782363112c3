package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Requirement statuses and delivery states.
const (
	ReqStatusIncoming   = "incoming"
	ReqStatusTodo       = "todo"
	ReqStatusInProgress = "in_progress"
	ReqStatusDone       = "done"
	ReqStatusBlocked    = "blocked"

	DeliveryPending  = "pending"
	DeliveryAccepted = "accepted"
	DeliveryRejected = "rejected"
)

var validReqStatus = map[string]bool{
	ReqStatusIncoming: true, ReqStatusTodo: true, ReqStatusInProgress: true,
	ReqStatusDone: true, ReqStatusBlocked: true,
}

// Requirement lives on the owning team; a delivered requirement is
// materialized on the target team only, carrying the delivery state.
type Requirement struct {
	ID                 string    `json:"id"`
	TeamID             string    `json:"team_id"`
	ProjectID          string    `json:"project_id,omitempty"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	Status             string    `json:"status"`
	Priority           int       `json:"priority"`
	SourceTeam         string    `json:"source_team,omitempty"`
	DeliveryState      string    `json:"delivery_state,omitempty"`
	DeliveryFromTeamID string    `json:"delivery_from_team_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (s *SQLStore) CreateRequirement(ctx context.Context, teamID, projectID, title, description string, priority int) (*Requirement, error) {
	now := time.Now().UTC()
	r := &Requirement{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TeamID:    teamID,
		ProjectID: projectID,
		Title:     title, Description: description,
		Status:   ReqStatusTodo,
		Priority: priority,
		CreatedAt: now, UpdatedAt: now,
	}
	_, err := s.exec(ctx, `
		INSERT INTO team_requirements (id, team_id, project_id, title, description, status, priority, source_team, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TeamID, nullable(r.ProjectID), r.Title, r.Description, r.Status, r.Priority, "", encodeTime(now), encodeTime(now))
	if err != nil {
		return nil, fmt.Errorf("create requirement: %w", err)
	}
	return r, nil
}

func (s *SQLStore) GetRequirement(ctx context.Context, teamID, id string) (*Requirement, error) {
	row := s.queryRow(ctx, `
		SELECT id, team_id, COALESCE(project_id, ''), title, description, status, priority, source_team,
			COALESCE(delivery_state, ''), COALESCE(delivery_from_team_id, ''), created_at, updated_at
		FROM team_requirements WHERE id = ? AND team_id = ?`, id, teamID)
	return scanRequirement(row)
}

func scanRequirement(row *sql.Row) (*Requirement, error) {
	var r Requirement
	var created, updated string
	err := row.Scan(&r.ID, &r.TeamID, &r.ProjectID, &r.Title, &r.Description, &r.Status, &r.Priority,
		&r.SourceTeam, &r.DeliveryState, &r.DeliveryFromTeamID, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get requirement: %w", err)
	}
	r.CreatedAt = decodeTime(created)
	r.UpdatedAt = decodeTime(updated)
	return &r, nil
}

func (s *SQLStore) ListRequirements(ctx context.Context, teamID string) ([]*Requirement, error) {
	rows, err := s.query(ctx, `
		SELECT id, team_id, COALESCE(project_id, ''), title, description, status, priority, source_team,
			COALESCE(delivery_state, ''), COALESCE(delivery_from_team_id, ''), created_at, updated_at
		FROM team_requirements WHERE team_id = ?
		ORDER BY priority DESC, created_at`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	defer rows.Close()
	var out []*Requirement
	for rows.Next() {
		var r Requirement
		var created, updated string
		if err := rows.Scan(&r.ID, &r.TeamID, &r.ProjectID, &r.Title, &r.Description, &r.Status, &r.Priority,
			&r.SourceTeam, &r.DeliveryState, &r.DeliveryFromTeamID, &created, &updated); err != nil {
			return nil, err
		}
		r.CreatedAt = decodeTime(created)
		r.UpdatedAt = decodeTime(updated)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateRequirementStatus(ctx context.Context, teamID, id, status string) error {
	if !validReqStatus[status] {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := s.exec(ctx, `
		UPDATE team_requirements SET status = ?, updated_at = ? WHERE id = ? AND team_id = ?`,
		status, encodeTime(time.Now()), id, teamID)
	if err != nil {
		return fmt.Errorf("update requirement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeliverRequirement transfers a requirement to another team: the new row is
// materialized on the target team only, status incoming, delivery pending.
// The source row is untouched.
func (s *SQLStore) DeliverRequirement(ctx context.Context, fromTeamID, id, toTeamID string) (*Requirement, error) {
	src, err := s.GetRequirement(ctx, fromTeamID, id)
	if err != nil {
		return nil, err
	}
	fromTeam, err := s.GetTeam(ctx, fromTeamID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetTeam(ctx, toTeamID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	delivered := &Requirement{
		ID:                 uuid.Must(uuid.NewV7()).String(),
		TeamID:             toTeamID,
		Title:              src.Title,
		Description:        src.Description,
		Status:             ReqStatusIncoming,
		Priority:           src.Priority,
		SourceTeam:         fromTeam.Name,
		DeliveryState:      DeliveryPending,
		DeliveryFromTeamID: fromTeamID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err = s.exec(ctx, `
		INSERT INTO team_requirements (id, team_id, project_id, title, description, status, priority, source_team, delivery_state, delivery_from_team_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		delivered.ID, delivered.TeamID, nil, delivered.Title, delivered.Description,
		delivered.Status, delivered.Priority, delivered.SourceTeam,
		delivered.DeliveryState, delivered.DeliveryFromTeamID, encodeTime(now), encodeTime(now))
	if err != nil {
		return nil, fmt.Errorf("deliver requirement: %w", err)
	}
	return delivered, nil
}

// ResolveDelivery accepts or rejects a pending delivered requirement on the
// receiving team.
func (s *SQLStore) ResolveDelivery(ctx context.Context, teamID, id string, accept bool) error {
	state := DeliveryRejected
	status := ReqStatusBlocked
	if accept {
		state = DeliveryAccepted
		status = ReqStatusTodo
	}
	res, err := s.exec(ctx, `
		UPDATE team_requirements SET delivery_state = ?, status = ?, updated_at = ?
		WHERE id = ? AND team_id = ? AND delivery_state = ?`,
		state, status, encodeTime(time.Now()), id, teamID, DeliveryPending)
	if err != nil {
		return fmt.Errorf("resolve delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
