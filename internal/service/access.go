package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/domain/camera"
	"github.com/edirooss/firewatch-server/internal/domain/principal"
	"github.com/edirooss/firewatch-server/internal/repo"
)

// ErrForbidden is returned when the principal may not see the resource.
var ErrForbidden = errors.New("forbidden")

// AccessPolicy decides camera visibility from the project topology.
//
//	admin      every camera
//	supervisor cameras of projects they supervise
//	agent      cameras of projects they are assigned to
type AccessPolicy struct {
	log  *zap.Logger
	topo *repo.TopologyRepository
}

func NewAccessPolicy(log *zap.Logger, topo *repo.TopologyRepository) *AccessPolicy {
	return &AccessPolicy{log: log.Named("access"), topo: topo}
}

// CanView reports whether p may view cam. A camera whose zone or project
// has been removed is visible to admins only.
func (a *AccessPolicy) CanView(ctx context.Context, p *principal.Principal, cam *camera.Camera) (bool, error) {
	if p == nil || cam == nil {
		return false, nil
	}
	if p.Role == principal.Admin {
		return true, nil
	}
	return newAccessMemo(a).canViewZone(ctx, p, cam.ZoneID)
}

// CanViewZone reports whether p may view the cameras of zone.
func (a *AccessPolicy) CanViewZone(ctx context.Context, p *principal.Principal, zoneID int64) (bool, error) {
	if p == nil {
		return false, nil
	}
	if p.Role == principal.Admin {
		return true, nil
	}
	return newAccessMemo(a).canViewZone(ctx, p, zoneID)
}

// Filter returns the subset of cams visible to p, preserving order.
func (a *AccessPolicy) Filter(ctx context.Context, p *principal.Principal, cams []*camera.Camera) ([]*camera.Camera, error) {
	if p == nil {
		return nil, nil
	}
	if p.Role == principal.Admin {
		return cams, nil
	}
	m := newAccessMemo(a)
	out := make([]*camera.Camera, 0, len(cams))
	for _, c := range cams {
		ok, err := m.canViewZone(ctx, p, c.ZoneID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (a *AccessPolicy) canViewProject(ctx context.Context, p *principal.Principal, projectID int64) (bool, error) {
	switch p.Role {
	case principal.Supervisor:
		proj, err := a.topo.GetProject(ctx, projectID)
		if err != nil {
			if errors.Is(err, repo.ErrProjectNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("get project: %w", err)
		}
		return proj.SupervisorID == p.ID, nil
	case principal.Agent:
		ok, err := a.topo.IsAgentAssigned(ctx, projectID, p.ID)
		if err != nil {
			return false, fmt.Errorf("agent assignment: %w", err)
		}
		return ok, nil
	default:
		return false, nil
	}
}

// accessMemo caches zone and project decisions for one request.
type accessMemo struct {
	policy   *AccessPolicy
	zones    map[int64]bool
	projects map[int64]bool
}

func newAccessMemo(a *AccessPolicy) *accessMemo {
	return &accessMemo{policy: a, zones: map[int64]bool{}, projects: map[int64]bool{}}
}

func (m *accessMemo) canViewZone(ctx context.Context, p *principal.Principal, zoneID int64) (bool, error) {
	if ok, hit := m.zones[zoneID]; hit {
		return ok, nil
	}
	z, err := m.policy.topo.GetZone(ctx, zoneID)
	if err != nil {
		if errors.Is(err, repo.ErrZoneNotFound) {
			m.zones[zoneID] = false
			return false, nil
		}
		return false, fmt.Errorf("get zone: %w", err)
	}
	ok, hit := m.projects[z.ProjectID]
	if !hit {
		if ok, err = m.policy.canViewProject(ctx, p, z.ProjectID); err != nil {
			return false, err
		}
		m.projects[z.ProjectID] = ok
	}
	m.zones[zoneID] = ok
	return ok, nil
}
