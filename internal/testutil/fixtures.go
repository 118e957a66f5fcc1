package testutil

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
	"github.com/shopspring/decimal"
)

// Family is a seeded household: one parent and any number of children.
type Family struct {
	Family   models.Family
	Parent   models.Member
	Children []models.Member
}

func (family Family) ParentIdentity() models.Identity {
	return IdentityOf(family.Parent)
}

func (family Family) ChildIdentity(index int) models.Identity {
	return IdentityOf(family.Children[index])
}

func IdentityOf(member models.Member) models.Identity {
	return models.Identity{
		UserID:   member.UserID,
		MemberID: member.ID,
		FamilyID: member.FamilyID,
		Role:     member.Role,
		Name:     member.Name,
		Email:    member.Email,
	}
}

// CreateFamily seeds a family with a parent named parentName and one child
// per entry in childNames. Every member gets a wallet and progress row.
func CreateFamily(t *testing.T, db *sql.DB, parentName string, childNames ...string) Family {
	t.Helper()
	ctx := context.Background()

	family, err := repository.NewFamilyRepository(db).Create(ctx, models.Family{Name: parentName + "'s family"})
	if err != nil {
		t.Fatalf("creating family: %v", err)
	}

	seeded := Family{Family: family}
	seeded.Parent = CreateMember(t, db, family.ID, parentName, models.RoleParent)
	for _, name := range childNames {
		seeded.Children = append(seeded.Children, CreateMember(t, db, family.ID, name, models.RoleChild))
	}
	return seeded
}

func CreateMember(t *testing.T, db *sql.DB, familyID string, name string, role models.Role) models.Member {
	t.Helper()
	ctx := context.Background()

	user, err := repository.NewUserRepository(db).Create(ctx, models.User{
		Name:         name,
		Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		PasswordHash: "not-a-real-hash",
	})
	if err != nil {
		t.Fatalf("creating user %s: %v", name, err)
	}

	memberRepo := repository.NewMemberRepository(db)
	member, err := memberRepo.Create(ctx, models.Member{UserID: user.ID, FamilyID: familyID, Role: role})
	if err != nil {
		t.Fatalf("creating member %s: %v", name, err)
	}
	if _, err := repository.NewWalletRepository(db).Ensure(ctx, member.ID, "BRL"); err != nil {
		t.Fatalf("creating wallet for %s: %v", name, err)
	}
	if _, err := repository.NewProgressRepository(db).Ensure(ctx, member.ID); err != nil {
		t.Fatalf("creating progress for %s: %v", name, err)
	}

	member, err = memberRepo.FindByID(ctx, member.ID)
	if err != nil {
		t.Fatalf("reloading member %s: %v", name, err)
	}
	return member
}

func CreateTask(t *testing.T, db *sql.DB, creator models.Member, executor models.Member, title string, value string, requiresPhoto bool) models.Task {
	t.Helper()

	task, err := repository.NewTaskRepository(db).Create(context.Background(), models.Task{
		Title:         title,
		BaseValue:     decimal.RequireFromString(value),
		RequiresPhoto: requiresPhoto,
		Priority:      models.PriorityMedium,
		Icon:          "broom",
		CreatorID:     creator.ID,
		ExecutorID:    &executor.ID,
	})
	if err != nil {
		t.Fatalf("creating task %s: %v", title, err)
	}
	return task
}

func CreateReward(t *testing.T, db *sql.DB, creator models.Member, title string, costXP int) models.Reward {
	t.Helper()

	reward, err := repository.NewRewardRepository(db).Create(context.Background(), models.Reward{
		FamilyID:  creator.FamilyID,
		Title:     title,
		CostXP:    costXP,
		CreatorID: creator.ID,
	})
	if err != nil {
		t.Fatalf("creating reward %s: %v", title, err)
	}
	return reward
}

func GrantXP(t *testing.T, db *sql.DB, member models.Member, amount int) {
	t.Helper()
	if err := repository.NewMemberRepository(db).AddXP(context.Background(), member.ID, amount); err != nil {
		t.Fatalf("granting xp to %s: %v", member.Name, err)
	}
}

func SetBalance(t *testing.T, db *sql.DB, member models.Member, balance string) {
	t.Helper()
	ctx := context.Background()
	wallets := repository.NewWalletRepository(db)

	wallet, err := wallets.FindByMember(ctx, member.ID)
	if err != nil {
		t.Fatalf("finding wallet of %s: %v", member.Name, err)
	}
	if err := wallets.UpdateBalance(ctx, wallet.ID, decimal.RequireFromString(balance)); err != nil {
		t.Fatalf("setting balance of %s: %v", member.Name, err)
	}
}
