// Package services – GroupService
//
// GroupService manages the membership lifecycle that drives room routing:
// creating groups, joining, soft-leaving, and listing a user's active groups.
// Group names are normalized, trimmed, and clipped here; the repository
// enforces the one-active-membership rule.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/vroymv/AfroLingo-sub000/internal/domain"
	"github.com/vroymv/AfroLingo-sub000/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GroupService provides group membership operations.
type GroupService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// NameMaxLen caps stored group names by rune length.
	NameMaxLen int

	now func() time.Time
}

// NewGroupService constructs a GroupService with a 60-rune name cap.
func NewGroupService(db *gorm.DB) *GroupService {
	return &GroupService{DB: db, NameMaxLen: 60, now: time.Now}
}

// Create inserts a group owned by userID, who becomes its first member.
func (s *GroupService) Create(ctx context.Context, userID, name string) (*domain.Group, error) {
	ctx, span := otel.Tracer("services/GroupService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	name = normalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	return repo.CreateGroup(ctx, s.DB, s.clip(name), userID)
}

// List returns the groups userID is an active member of.
func (s *GroupService) List(ctx context.Context, userID string) ([]domain.Group, error) {
	return repo.ListGroupsForUser(ctx, s.DB, userID)
}

// ActiveGroupIDs returns the ids of userID's active memberships, which is the
// set of group rooms a connection belongs in.
func (s *GroupService) ActiveGroupIDs(ctx context.Context, userID string) ([]string, error) {
	ms, err := repo.FindActiveMemberships(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.GroupID)
	}
	return ids, nil
}

// Join adds userID to groupID. Joining while already active returns the
// existing membership with created=false.
func (s *GroupService) Join(ctx context.Context, userID, groupID string) (*domain.Membership, bool, error) {
	ctx, span := otel.Tracer("services/GroupService").Start(ctx, "Join",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("group.id", groupID),
		),
	)
	defer span.End()

	if _, err := repo.GetGroup(ctx, s.DB, groupID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, ErrGroupNotFound
		}
		return nil, false, err
	}
	return repo.JoinGroup(ctx, s.DB, groupID, userID, repo.RoleMember)
}

// Leave soft-deletes userID's active membership in groupID.
func (s *GroupService) Leave(ctx context.Context, userID, groupID string) error {
	ctx, span := otel.Tracer("services/GroupService").Start(ctx, "Leave",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("group.id", groupID),
		),
	)
	defer span.End()

	if err := repo.LeaveGroup(ctx, s.DB, groupID, userID, clock(s.now)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotAMember
		}
		return err
	}
	return nil
}

func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}

func (s *GroupService) clip(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// normalizeName trims whitespace and collapses multiple spaces to one.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

var whitespaceRE = regexp.MustCompile(`\s+`)
