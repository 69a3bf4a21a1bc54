package camera

import "errors"

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectPaused   ProjectStatus = "paused"
	ProjectFinished ProjectStatus = "finished"
)

type Project struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	SupervisorID string        `json:"supervisor_id"` // user id (email) of the supervisor
	Status       ProjectStatus `json:"status"`
}

type Zone struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ProjectID int64  `json:"project_id"`
}

func (p *Project) Validate() error {
	if p.Name == "" || len(p.Name) > 100 {
		return errors.New("project name must be 1..100 characters")
	}
	if p.SupervisorID == "" {
		return errors.New("project supervisor is required")
	}
	switch p.Status {
	case ProjectActive, ProjectPaused, ProjectFinished:
	case "":
		p.Status = ProjectActive
	default:
		return errors.New("project status must be one of active, paused, finished")
	}
	return nil
}

func (z *Zone) Validate() error {
	if z.Name == "" || len(z.Name) > 100 {
		return errors.New("zone name must be 1..100 characters")
	}
	if z.ProjectID <= 0 {
		return errors.New("zone project_id must be a positive integer")
	}
	return nil
}
