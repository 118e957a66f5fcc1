package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
	"github.com/shopspring/decimal"
)

const recentSubmissionCount = 10

type ChildOverview struct {
	Member            models.Member
	Progress          models.Progress
	LevelPercent      int
	Streak            Streak
	Wallet            models.Wallet
	EarnedFromTasks   decimal.Decimal
	LostToRejections  decimal.Decimal
	XPSpent           int
	CompletedTasks    int
	ActiveTasks       []models.Task
	RecentSubmissions []models.SubmissionDetail
	Notifications     []models.Notification
}

type ChildSummary struct {
	Member         models.Member
	Wallet         models.Wallet
	TotalEarned    decimal.Decimal
	TotalPaid      decimal.Decimal
	CompletedTasks int
}

type ParentOverview struct {
	Family         models.Family
	Children       []ChildSummary
	TotalPromised  decimal.Decimal
	TotalPaid      decimal.Decimal
	PendingReviews []models.SubmissionDetail
	ActiveTasks    []models.Task
	Redemptions    []models.RedemptionDetail
	Notifications  []models.Notification
}

// DashboardService assembles the read-only views behind the home and
// profile pages.
type DashboardService struct {
	familyRepo       repository.FamilyRepository
	memberRepo       repository.MemberRepository
	walletRepo       repository.WalletRepository
	ledgerRepo       repository.LedgerRepository
	progressRepo     repository.ProgressRepository
	taskRepo         repository.TaskRepository
	submissionRepo   repository.SubmissionRepository
	redemptionRepo   repository.RedemptionRepository
	notificationRepo repository.NotificationRepository
	currency         string
	now              func() time.Time
}

func NewDashboardService(db *sql.DB, currency string) *DashboardService {
	return &DashboardService{
		familyRepo:       repository.NewFamilyRepository(db),
		memberRepo:       repository.NewMemberRepository(db),
		walletRepo:       repository.NewWalletRepository(db),
		ledgerRepo:       repository.NewLedgerRepository(db),
		progressRepo:     repository.NewProgressRepository(db),
		taskRepo:         repository.NewTaskRepository(db),
		submissionRepo:   repository.NewSubmissionRepository(db),
		redemptionRepo:   repository.NewRedemptionRepository(db),
		notificationRepo: repository.NewNotificationRepository(db),
		currency:         currency,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (service *DashboardService) ChildOverview(ctx context.Context, child models.Identity) (ChildOverview, error) {
	if !child.IsChild() {
		return ChildOverview{}, ErrForbidden
	}

	member, err := service.memberRepo.FindByID(ctx, child.MemberID)
	if err != nil {
		return ChildOverview{}, fmt.Errorf("loading child: %w", err)
	}
	progress, err := service.progressRepo.Ensure(ctx, member.ID)
	if err != nil {
		return ChildOverview{}, fmt.Errorf("loading progress: %w", err)
	}
	wallet, err := service.walletRepo.Ensure(ctx, member.ID, service.currency)
	if err != nil {
		return ChildOverview{}, fmt.Errorf("loading wallet: %w", err)
	}

	approvedTimes, err := service.submissionRepo.ApprovedTimes(ctx, member.ID)
	if err != nil {
		return ChildOverview{}, fmt.Errorf("loading streak: %w", err)
	}
	earned, err := service.submissionRepo.SumValueByStatus(ctx, member.ID, models.SubmissionApproved)
	if err != nil {
		return ChildOverview{}, fmt.Errorf("loading earnings: %w", err)
	}
	lost, err := service.submissionRepo.SumValueByStatus(ctx, member.ID, models.SubmissionRejected)
	if err != nil {
		return ChildOverview{}, fmt.Errorf("loading rejections: %w", err)
	}
	spent, err := service.redemptionRepo.SumXPPaid(ctx, member.ID, models.RedemptionDelivered)
	if err != nil {
		return ChildOverview{}, fmt.Errorf("loading spent xp: %w", err)
	}

	active := models.TaskStatusActive
	activeTasks, err := service.taskRepo.FindAll(ctx, repository.TaskFilter{
		ExecutorID: &member.ID,
		Status:     &active,
		OrderBy:    repository.OrderByDeadlineAsc,
	})
	if err != nil {
		return ChildOverview{}, fmt.Errorf("loading active tasks: %w", err)
	}
	recent, err := service.submissionRepo.FindDetails(ctx, repository.SubmissionFilter{
		ExecutorID: &member.ID,
		Limit:      recentSubmissionCount,
	})
	if err != nil {
		return ChildOverview{}, fmt.Errorf("loading recent submissions: %w", err)
	}
	notifications, err := service.notificationRepo.FindUnread(ctx, member.UserID)
	if err != nil {
		return ChildOverview{}, fmt.Errorf("loading notifications: %w", err)
	}

	return ChildOverview{
		Member:            member,
		Progress:          progress,
		LevelPercent:      LevelPercent(progress),
		Streak:            ComputeStreak(approvedTimes, service.now()),
		Wallet:            wallet,
		EarnedFromTasks:   earned,
		LostToRejections:  lost,
		XPSpent:           spent,
		CompletedTasks:    len(approvedTimes),
		ActiveTasks:       activeTasks,
		RecentSubmissions: recent,
		Notifications:     notifications,
	}, nil
}

func (service *DashboardService) ParentOverview(ctx context.Context, parent models.Identity) (ParentOverview, error) {
	if !parent.IsParent() {
		return ParentOverview{}, ErrForbidden
	}

	family, err := service.familyRepo.FindByID(ctx, parent.FamilyID)
	if err != nil {
		return ParentOverview{}, fmt.Errorf("loading family: %w", err)
	}

	children, err := service.memberRepo.FindByFamily(ctx, family.ID, models.RoleChild)
	if err != nil {
		return ParentOverview{}, fmt.Errorf("loading children: %w", err)
	}

	overview := ParentOverview{
		Family:        family,
		TotalPromised: decimal.Zero,
		TotalPaid:     decimal.Zero,
	}
	for _, child := range children {
		summary, err := service.childSummary(ctx, child)
		if err != nil {
			return ParentOverview{}, err
		}
		overview.Children = append(overview.Children, summary)
		overview.TotalPromised = overview.TotalPromised.Add(summary.TotalEarned)
		overview.TotalPaid = overview.TotalPaid.Add(summary.TotalPaid)
	}

	pending := models.SubmissionPending
	overview.PendingReviews, err = service.submissionRepo.FindDetails(ctx, repository.SubmissionFilter{
		FamilyID: &family.ID,
		Status:   &pending,
	})
	if err != nil {
		return ParentOverview{}, fmt.Errorf("loading pending reviews: %w", err)
	}

	active := models.TaskStatusActive
	overview.ActiveTasks, err = service.taskRepo.FindAll(ctx, repository.TaskFilter{
		FamilyID: &family.ID,
		Status:   &active,
		OrderBy:  repository.OrderByDeadlineAsc,
	})
	if err != nil {
		return ParentOverview{}, fmt.Errorf("loading active tasks: %w", err)
	}

	redemptions, err := service.redemptionRepo.FindDetails(ctx, repository.RedemptionFilter{FamilyID: &family.ID})
	if err != nil {
		return ParentOverview{}, fmt.Errorf("loading redemptions: %w", err)
	}
	overview.Redemptions = VisibleRedemptions(redemptions, service.now())

	overview.Notifications, err = service.notificationRepo.FindUnread(ctx, parent.UserID)
	if err != nil {
		return ParentOverview{}, fmt.Errorf("loading notifications: %w", err)
	}
	return overview, nil
}

func (service *DashboardService) childSummary(ctx context.Context, child models.Member) (ChildSummary, error) {
	wallet, err := service.walletRepo.Ensure(ctx, child.ID, service.currency)
	if err != nil {
		return ChildSummary{}, fmt.Errorf("loading wallet of %s: %w", child.ID, err)
	}
	totals, err := service.ledgerRepo.TotalsByWallet(ctx, wallet.ID)
	if err != nil {
		return ChildSummary{}, fmt.Errorf("loading ledger of %s: %w", child.ID, err)
	}
	completed, err := service.submissionRepo.CountByStatus(ctx, child.ID, models.SubmissionApproved)
	if err != nil {
		return ChildSummary{}, fmt.Errorf("counting tasks of %s: %w", child.ID, err)
	}

	return ChildSummary{
		Member:         child,
		Wallet:         wallet,
		TotalEarned:    EarnedTotal(totals),
		TotalPaid:      totals[models.LedgerDebitPayment],
		CompletedTasks: completed,
	}, nil
}
