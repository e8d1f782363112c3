package httpapi

import (
	"net/http"
	"strings"

	"github.com/jetlinks-ai/aistaff/internal/apierr"
	"github.com/jetlinks-ai/aistaff/internal/auth"
)

// Team administration endpoints. Creating teams and adding members,
// projects or skills require owner|admin on the active team; requirement
// create, status, deliver, accept and reject are open to any member. Reads
// require membership (the bearer token's active team).

func (h *Handlers) requireAdmin(r *http.Request) (*auth.Principal, error) {
	p, err := principal(r.Context())
	if err != nil {
		return nil, err
	}
	if !p.Role.IsAdmin() {
		return nil, apierr.New(apierr.KindPermissionDenied, "requires an owner or admin role")
	}
	return p, nil
}

// Teams handles GET /teams (list) and POST /teams (create).
func (h *Handlers) Teams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, err := principal(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		team, err := h.Store.GetTeam(r.Context(), p.TeamID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"teams": []any{team}})
	case http.MethodPost:
		p, err := h.requireAdmin(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Name          string `json:"name"`
			WorkspacePath string `json:"workspace_path,omitempty"`
		}
		if err := decodeBody(r, &req, 1<<20); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, apierr.New(apierr.KindValidation, "name is required"))
			return
		}
		team, err := h.Store.CreateTeam(r.Context(), req.Name, req.WorkspacePath)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := h.Store.AddMember(r.Context(), p.UserID, team.ID, "owner"); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, team)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TeamSub routes /teams/{id}/members|projects|skills|requirements.
func (h *Handlers) TeamSub(w http.ResponseWriter, r *http.Request) {
	rest := pathParam(r.URL.Path, "/teams/")
	teamID, sub, _ := strings.Cut(rest, "/")
	if teamID == "" || sub == "" {
		writeError(w, apierr.New(apierr.KindValidation, "team id and resource are required"))
		return
	}
	p, err := principal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	// The bearer token pins the active team; cross-team admin is not a thing.
	if p.TeamID != teamID {
		writeError(w, apierr.New(apierr.KindNotFound, "team not found"))
		return
	}

	switch sub {
	case "members":
		h.teamMembers(w, r, p)
	case "projects":
		h.teamProjects(w, r, p)
	case "skills":
		h.teamSkillsAPI(w, r, p)
	case "requirements":
		h.teamRequirements(w, r, p)
	default:
		writeError(w, apierr.Newf(apierr.KindNotFound, "unknown resource %q", sub))
	}
}

func (h *Handlers) teamMembers(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !p.Role.IsAdmin() {
		writeError(w, apierr.New(apierr.KindPermissionDenied, "requires an owner or admin role"))
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := decodeBody(r, &req, 1<<20); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Store.AddMember(r.Context(), req.UserID, p.TeamID, req.Role); err != nil {
		writeError(w, apierr.Wrap(apierr.KindValidation, err.Error(), err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) teamProjects(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	switch r.Method {
	case http.MethodGet:
		projects, err := h.Store.ListProjects(r.Context(), p.TeamID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case http.MethodPost:
		if !p.Role.IsAdmin() {
			writeError(w, apierr.New(apierr.KindPermissionDenied, "requires an owner or admin role"))
			return
		}
		var req struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
			Path string `json:"path"`
		}
		if err := decodeBody(r, &req, 1<<20); err != nil {
			writeError(w, err)
			return
		}
		proj, err := h.Store.CreateProject(r.Context(), p.TeamID, req.Name, req.Slug, req.Path,
			h.Cfg.Workspace.ProjectsRootAllow)
		if err != nil {
			writeError(w, apierr.Wrap(apierr.KindValidation, err.Error(), err))
			return
		}
		writeJSON(w, http.StatusCreated, proj)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) teamSkillsAPI(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	switch r.Method {
	case http.MethodGet:
		skills, err := h.Store.ListEnabledSkills(r.Context(), p.TeamID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"skills": skills})
	case http.MethodPost:
		if !p.Role.IsAdmin() {
			writeError(w, apierr.New(apierr.KindPermissionDenied, "requires an owner or admin role"))
			return
		}
		var req struct {
			Name    string `json:"name"`
			Content string `json:"content"`
		}
		if err := decodeBody(r, &req, 1<<20); err != nil {
			writeError(w, err)
			return
		}
		skill, err := h.Store.CreateSkill(r.Context(), p.TeamID, req.Name, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, skill)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) teamRequirements(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	switch r.Method {
	case http.MethodGet:
		reqs, err := h.Store.ListRequirements(r.Context(), p.TeamID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requirements": reqs})
	case http.MethodPost:
		var req struct {
			ProjectID   string `json:"project_id,omitempty"`
			Title       string `json:"title"`
			Description string `json:"description,omitempty"`
			Priority    int    `json:"priority,omitempty"`
		}
		if err := decodeBody(r, &req, 1<<20); err != nil {
			writeError(w, err)
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			writeError(w, apierr.New(apierr.KindValidation, "title is required"))
			return
		}
		created, err := h.Store.CreateRequirement(r.Context(), p.TeamID, req.ProjectID, req.Title, req.Description, req.Priority)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RequirementAction routes POST /requirements/{id}/deliver|accept|reject and
// PATCH /requirements/{id}.
func (h *Handlers) RequirementAction(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	rest := pathParam(r.URL.Path, "/requirements/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, apierr.New(apierr.KindValidation, "requirement id is required"))
		return
	}

	switch {
	case r.Method == http.MethodPatch && action == "":
		var req struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &req, 1<<20); err != nil {
			writeError(w, err)
			return
		}
		if err := h.Store.UpdateRequirementStatus(r.Context(), p.TeamID, id, req.Status); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case r.Method == http.MethodPost && action == "deliver":
		var req struct {
			ToTeamID string `json:"to_team_id"`
		}
		if err := decodeBody(r, &req, 1<<20); err != nil {
			writeError(w, err)
			return
		}
		delivered, err := h.Store.DeliverRequirement(r.Context(), p.TeamID, id, req.ToTeamID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, delivered)
	case r.Method == http.MethodPost && (action == "accept" || action == "reject"):
		if err := h.Store.ResolveDelivery(r.Context(), p.TeamID, id, action == "accept"); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, apierr.Newf(apierr.KindNotFound, "unknown action %q", action))
	}
}
