package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
)

type ProfileInput struct {
	Name string `form:"name" validate:"required,max=100"`
}

type FamilyService struct {
	familyRepo repository.FamilyRepository
	memberRepo repository.MemberRepository
	userRepo   repository.UserRepository
	storage    Storage
}

func NewFamilyService(db *sql.DB, storage Storage) *FamilyService {
	return &FamilyService{
		familyRepo: repository.NewFamilyRepository(db),
		memberRepo: repository.NewMemberRepository(db),
		userRepo:   repository.NewUserRepository(db),
		storage:    storage,
	}
}

func (service *FamilyService) Family(ctx context.Context, familyID string) (models.Family, error) {
	family, err := service.familyRepo.FindByID(ctx, familyID)
	if repository.IsNotFound(err) {
		return models.Family{}, ErrNotFound
	}
	if err != nil {
		return models.Family{}, fmt.Errorf("loading family: %w", err)
	}
	return family, nil
}

func (service *FamilyService) Children(ctx context.Context, familyID string) ([]models.Member, error) {
	children, err := service.memberRepo.FindByFamily(ctx, familyID, models.RoleChild)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	return children, nil
}

// SubscribePro upgrades the family plan. Checkout is simulated: no payment
// provider is involved.
func (service *FamilyService) SubscribePro(ctx context.Context, parent models.Identity) error {
	if !parent.IsParent() {
		return ErrForbidden
	}
	if err := service.familyRepo.UpdatePlan(ctx, parent.FamilyID, models.PlanPro); err != nil {
		return fmt.Errorf("subscribing to pro: %w", err)
	}
	slog.Info("family upgraded", "family_id", parent.FamilyID, "plan", models.PlanPro)
	return nil
}

// UpdateProfile renames the user and, when an avatar is uploaded, replaces
// their picture.
func (service *FamilyService) UpdateProfile(ctx context.Context, identity models.Identity, input ProfileInput, avatar Upload) (models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(input); err != nil {
		return models.User{}, err
	}

	user, err := service.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		return models.User{}, fmt.Errorf("loading profile: %w", err)
	}

	avatarURL := user.AvatarURL
	if !avatar.Empty() {
		avatarURL, err = service.storage.Save(ctx, FolderAvatars, avatar)
		if err != nil {
			return models.User{}, fmt.Errorf("storing avatar: %w", err)
		}
		if user.AvatarURL != "" {
			if err := service.storage.Delete(ctx, user.AvatarURL); err != nil {
				slog.Warn("removing previous avatar", "error", err, "user_id", user.ID)
			}
		}
	}

	if err := service.userRepo.UpdateProfile(ctx, user.ID, input.Name, avatarURL); err != nil {
		return models.User{}, fmt.Errorf("updating profile: %w", err)
	}
	user.Name = input.Name
	user.AvatarURL = avatarURL
	return user, nil
}
