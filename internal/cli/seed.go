package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/edirooss/firewatch-server/internal/domain/camera"
	"github.com/edirooss/firewatch-server/internal/domain/principal"
	"github.com/edirooss/firewatch-server/internal/repo"
	"github.com/edirooss/firewatch-server/internal/service"
)

// seedFile is the YAML layout accepted by `firewatch-server seed`.
type seedFile struct {
	Users    []seedUser    `yaml:"users"`
	Tokens   []seedToken   `yaml:"tokens"`
	Projects []seedProject `yaml:"projects"`
	Zones    []seedZone    `yaml:"zones"`
	Cameras  []seedCamera  `yaml:"cameras"`
}

type seedUser struct {
	Email     string         `yaml:"email"`
	FirstName string         `yaml:"first_name"`
	LastName  string         `yaml:"last_name"`
	Role      principal.Role `yaml:"role"`
	Password  string         `yaml:"password"`
	Active    bool           `yaml:"active"`
}

type seedToken struct {
	Token string         `yaml:"token"`
	ID    string         `yaml:"id"`
	Role  principal.Role `yaml:"role"`
}

type seedProject struct {
	ID         int64                `yaml:"id"`
	Name       string               `yaml:"name"`
	Supervisor string               `yaml:"supervisor"`
	Status     camera.ProjectStatus `yaml:"status"`
	Agents     []string             `yaml:"agents"`
}

type seedZone struct {
	ID        int64  `yaml:"id"`
	Name      string `yaml:"name"`
	ProjectID int64  `yaml:"project_id"`
}

type seedCamera struct {
	ID          int64    `yaml:"id"` // 0 allocates the next id
	Name        string   `yaml:"name"`
	ZoneID      int64    `yaml:"zone_id"`
	Description *string  `yaml:"description"`
	Lat         *float64 `yaml:"lat"`
	Lng         *float64 `yaml:"lng"`
	URL         *string  `yaml:"url"` // full source url, wins over the triple
	Address     *string  `yaml:"address"`
	Port        *int     `yaml:"port"`
	Path        *string  `yaml:"path"`
	Username    *string  `yaml:"username"`
	Password    *string  `yaml:"password"`
}

func (s seedCamera) camera() *camera.Camera {
	c := &camera.Camera{
		ID:          s.ID,
		Name:        s.Name,
		ZoneID:      s.ZoneID,
		Description: s.Description,
		CustomURL:   s.URL,
		Address:     s.Address,
		Port:        s.Port,
		Path:        s.Path,
		Username:    s.Username,
		Password:    s.Password,
	}
	c.IsFullRTSPURL = s.URL != nil && *s.URL != ""
	if s.Lat != nil && s.Lng != nil {
		c.Coords = &camera.Coordinates{Lat: *s.Lat, Lng: *s.Lng}
	}
	return c
}

func newSeedCommand(cfgFile *string) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load users, tokens, projects, zones and cameras into Redis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			seed, err := decodeSeed(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d users, %d tokens, %d projects, %d zones, %d cameras\n",
					args[0], len(seed.Users), len(seed.Tokens), len(seed.Projects), len(seed.Zones), len(seed.Cameras))
				return nil
			}

			a, err := newApp(*cfgFile)
			if err != nil {
				return err
			}
			defer a.close()
			r, err := a.openRepo(cmd.Context())
			if err != nil {
				return err
			}
			return applySeed(cmd.Context(), a.log.Named("seed"), r, seed)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	return cmd
}

// decodeSeed parses and validates a seed file. Unknown keys are rejected.
func decodeSeed(r io.Reader) (*seedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s seedFile
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty seed file")
		}
		return nil, fmt.Errorf("decode: %w", err)
	}

	var errs []error
	for i, u := range s.Users {
		if u.Email == "" {
			errs = append(errs, fmt.Errorf("users[%d]: email is required", i))
		}
		if len(u.Password) < 8 {
			errs = append(errs, fmt.Errorf("users[%d]: password must be at least 8 characters", i))
		}
	}
	for i, t := range s.Tokens {
		if t.Token == "" || t.ID == "" {
			errs = append(errs, fmt.Errorf("tokens[%d]: token and id are required", i))
		}
	}
	for i, p := range s.Projects {
		if p.Status == "" {
			s.Projects[i].Status = camera.ProjectActive
		}
		if p.ID <= 0 {
			errs = append(errs, fmt.Errorf("projects[%d]: id must be a positive integer", i))
		}
		proj := camera.Project{ID: p.ID, Name: p.Name, SupervisorID: p.Supervisor, Status: s.Projects[i].Status}
		if err := proj.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("projects[%d]: %w", i, err))
		}
	}
	for i, z := range s.Zones {
		if z.ID <= 0 {
			errs = append(errs, fmt.Errorf("zones[%d]: id must be a positive integer", i))
		}
		zone := camera.Zone{ID: z.ID, Name: z.Name, ProjectID: z.ProjectID}
		if err := zone.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("zones[%d]: %w", i, err))
		}
	}
	for i, c := range s.Cameras {
		if err := c.camera().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("cameras[%d] %q: %w", i, c.Name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &s, nil
}

// applySeed upserts everything in s. Existing records with the same key are
// replaced.
func applySeed(ctx context.Context, log *zap.Logger, r *repo.Repository, s *seedFile) error {
	for _, u := range s.Users {
		hash, err := service.HashPassword(u.Password)
		if err != nil {
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
		if err := r.Users.Upsert(ctx, &repo.User{
			ID:           u.Email,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			Role:         u.Role,
			Active:       u.Active,
			PasswordHash: hash,
		}); err != nil {
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
	}
	for _, t := range s.Tokens {
		if err := r.Principals.Upsert(ctx, t.Token, &principal.Principal{ID: t.ID, Role: t.Role}); err != nil {
			return fmt.Errorf("token for %s: %w", t.ID, err)
		}
	}
	for _, p := range s.Projects {
		if err := r.Topology.UpsertProject(ctx, &camera.Project{
			ID: p.ID, Name: p.Name, SupervisorID: p.Supervisor, Status: p.Status,
		}); err != nil {
			return fmt.Errorf("project %d: %w", p.ID, err)
		}
		if len(p.Agents) > 0 {
			if err := r.Topology.AssignAgents(ctx, p.ID, p.Agents...); err != nil {
				return fmt.Errorf("project %d agents: %w", p.ID, err)
			}
		}
	}
	for _, z := range s.Zones {
		if err := r.Topology.UpsertZone(ctx, &camera.Zone{ID: z.ID, Name: z.Name, ProjectID: z.ProjectID}); err != nil {
			return fmt.Errorf("zone %d: %w", z.ID, err)
		}
	}
	for _, sc := range s.Cameras {
		c := sc.camera()
		if c.ID == 0 {
			id, err := freeCameraID(ctx, r)
			if err != nil {
				return fmt.Errorf("camera %q: %w", c.Name, err)
			}
			c.ID = id
		}
		if err := r.Cameras.Upsert(ctx, c); err != nil {
			return fmt.Errorf("camera %q: %w", c.Name, err)
		}
	}

	log.Info("seed applied",
		zap.Int("users", len(s.Users)),
		zap.Int("tokens", len(s.Tokens)),
		zap.Int("projects", len(s.Projects)),
		zap.Int("zones", len(s.Zones)),
		zap.Int("cameras", len(s.Cameras)))
	return nil
}

// freeCameraID allocates ids until one is not taken by an explicit id.
func freeCameraID(ctx context.Context, r *repo.Repository) (int64, error) {
	for {
		id, err := r.Cameras.GenerateID(ctx)
		if err != nil {
			return 0, err
		}
		_, err = r.Cameras.GetByID(ctx, id)
		if errors.Is(err, repo.ErrCameraNotFound) {
			return id, nil
		}
		if err != nil {
			return 0, err
		}
	}
}
