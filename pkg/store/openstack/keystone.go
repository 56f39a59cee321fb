package openstack

import (
	"context"
	"errors"
	"fmt"

	"github.com/de-tools/billing-extract/pkg/models/domain"
	"github.com/de-tools/billing-extract/pkg/services/identity"
)

type projectResponse struct {
	Project struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"project"`
}

type userResponse struct {
	User struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
}

// GetProject resolves a project id to its display name. An unknown id maps
// to identity.ErrNotFound; keystone answers 404 for missing ids and 400 for
// ids it cannot even parse, and both mean "no such project" here.
func (s *Session) GetProject(ctx context.Context, id string) (domain.IdentityEntry, error) {
	var pr projectResponse
	err := s.getJSON(ctx, s.keystoneURL+"/projects/"+id, defaultTimeout, &pr)
	if err != nil {
		return domain.IdentityEntry{}, mapLookupError("project", id, err)
	}
	return domain.IdentityEntry{ID: pr.Project.ID, Name: pr.Project.Name}, nil
}

// GetUser resolves a user id to its display name.
func (s *Session) GetUser(ctx context.Context, id string) (domain.IdentityEntry, error) {
	var ur userResponse
	err := s.getJSON(ctx, s.keystoneURL+"/users/"+id, defaultTimeout, &ur)
	if err != nil {
		return domain.IdentityEntry{}, mapLookupError("user", id, err)
	}
	return domain.IdentityEntry{ID: ur.User.ID, Name: ur.User.Name}, nil
}

func mapLookupError(kind, id string, err error) error {
	var se *StatusError
	if errors.As(err, &se) && (se.Status == 404 || se.Status == 400) {
		return identity.ErrNotFound
	}
	return fmt.Errorf("%s lookup %s: %w", kind, id, err)
}
