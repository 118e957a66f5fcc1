package services_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
	"github.com/samuelogino/taskpay/internal/services"
	"github.com/samuelogino/taskpay/internal/testutil"
	"github.com/shopspring/decimal"
)

func setupTaskService(t *testing.T) (*services.TaskService, *sql.DB, *services.LocalStorage) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	storage := services.NewLocalStorage(t.TempDir())
	notifier := services.NewNotifier(db, nil)
	return services.NewTaskService(db, storage, notifier, "BRL"), db, storage
}

func unreadKinds(t *testing.T, db *sql.DB, userID string) []models.NotificationKind {
	t.Helper()
	notifications, err := repository.NewNotificationRepository(db).FindUnread(context.Background(), userID)
	if err != nil {
		t.Fatalf("finding notifications: %v", err)
	}
	var kinds []models.NotificationKind
	for _, notification := range notifications {
		kinds = append(kinds, notification.Kind)
	}
	return kinds
}

func walletOf(t *testing.T, db *sql.DB, member models.Member) models.Wallet {
	t.Helper()
	wallet, err := repository.NewWalletRepository(db).FindByMember(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("finding wallet: %v", err)
	}
	return wallet
}

func submissionFor(t *testing.T, db *sql.DB, taskID string) models.Submission {
	t.Helper()
	submission, err := repository.NewSubmissionRepository(db).FindByTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("finding submission: %v", err)
	}
	return submission
}

func validTaskInput(executorID string) services.CreateTaskInput {
	return services.CreateTaskInput{
		Title:      "Wash the dishes",
		ExecutorID: executorID,
		Priority:   models.PriorityHigh,
		Icon:       "sink",
		Value:      "5,50",
		Deadline:   "2025-06-01",
	}
}

func TestCreateTask_NotifiesChild(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")

	task, err := service.CreateTask(context.Background(), family.ParentIdentity(), validTaskInput(family.Children[0].ID))
	if err != nil {
		t.Fatalf("creating task: %v", err)
	}

	if task.Status != models.TaskStatusActive {
		t.Errorf("expected ACTIVE task, got %s", task.Status)
	}
	if !task.BaseValue.Equal(decimal.RequireFromString("5.50")) {
		t.Errorf("expected value 5.50, got %s", task.BaseValue)
	}
	if task.Deadline == nil || task.Deadline.Format("2006-01-02") != "2025-06-01" {
		t.Errorf("expected deadline 2025-06-01, got %v", task.Deadline)
	}

	kinds := unreadKinds(t, db, family.Children[0].UserID)
	if len(kinds) != 1 || kinds[0] != models.NotificationNewTask {
		t.Errorf("expected one NOVA_TAREFA notification, got %v", kinds)
	}
}

func TestCreateTask_InvalidValueBecomesZero(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")

	input := validTaskInput(family.Children[0].ID)
	input.Value = "lots"

	task, err := service.CreateTask(context.Background(), family.ParentIdentity(), input)
	if err != nil {
		t.Fatalf("creating task: %v", err)
	}
	if !task.BaseValue.IsZero() {
		t.Errorf("expected zero value, got %s", task.BaseValue)
	}
}

func TestCreateTask_ValidationListsEveryField(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")

	_, err := service.CreateTask(context.Background(), family.ParentIdentity(), services.CreateTaskInput{})

	var validationErrors services.ValidationErrors
	if !errors.As(err, &validationErrors) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	fields := map[string]bool{}
	for _, fieldError := range validationErrors {
		fields[fieldError.Field] = true
	}
	for _, field := range []string{"title", "executor_id", "priority", "icon"} {
		if !fields[field] {
			t.Errorf("expected error for %s, got %v", field, validationErrors)
		}
	}

	tasks, err := repository.NewTaskRepository(db).FindAll(context.Background(), repository.TaskFilter{})
	if err != nil {
		t.Fatalf("listing tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no task written, got %d", len(tasks))
	}
}

func TestCreateTask_ExecutorFromAnotherFamily(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	other := testutil.CreateFamily(t, db, "Caio", "Duda")

	_, err := service.CreateTask(context.Background(), family.ParentIdentity(), validTaskInput(other.Children[0].ID))
	if !errors.Is(err, services.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateTask_ChildCannotCreate(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")

	_, err := service.CreateTask(context.Background(), family.ChildIdentity(0), validTaskInput(family.Children[0].ID))
	if !errors.Is(err, services.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestSubmitTask_DeactivatesAndNotifiesParents(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	second := testutil.CreateMember(t, db, family.Family.ID, "Beto", models.RoleParent)
	task := testutil.CreateTask(t, db, family.Parent, family.Children[0], "Feed the cat", "3.00", false)

	if err := service.SubmitTask(context.Background(), family.ChildIdentity(0), task.ID, ""); err != nil {
		t.Fatalf("submitting task: %v", err)
	}

	reloaded, err := repository.NewTaskRepository(db).FindByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("finding task: %v", err)
	}
	if reloaded.Status != models.TaskStatusInactive {
		t.Errorf("expected INACTIVE task, got %s", reloaded.Status)
	}

	submission := submissionFor(t, db, task.ID)
	if submission.Status != models.SubmissionPending {
		t.Errorf("expected PENDING submission, got %s", submission.Status)
	}
	if submission.Note != "Done." {
		t.Errorf("expected default note, got %q", submission.Note)
	}

	for _, parent := range []models.Member{family.Parent, second} {
		kinds := unreadKinds(t, db, parent.UserID)
		if len(kinds) != 1 || kinds[0] != models.NotificationTaskPending {
			t.Errorf("expected TAREFA_PENDENTE for %s, got %v", parent.Name, kinds)
		}
	}
}

func TestSubmitTask_Rejections(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia", "Caio")
	plain := testutil.CreateTask(t, db, family.Parent, family.Children[0], "Make the bed", "1.00", false)
	photo := testutil.CreateTask(t, db, family.Parent, family.Children[0], "Clean the room", "2.00", true)

	ctx := context.Background()
	if err := service.SubmitTask(ctx, family.ChildIdentity(1), plain.ID, ""); !errors.Is(err, services.ErrForbidden) {
		t.Errorf("expected ErrForbidden for another child, got %v", err)
	}
	if err := service.SubmitTask(ctx, family.ChildIdentity(0), photo.ID, ""); !errors.Is(err, services.ErrPhotoRequired) {
		t.Errorf("expected ErrPhotoRequired, got %v", err)
	}
	if err := service.SubmitTask(ctx, family.ChildIdentity(0), "missing", ""); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := service.SubmitTask(ctx, family.ChildIdentity(0), plain.ID, ""); err != nil {
		t.Fatalf("submitting task: %v", err)
	}
	if err := service.SubmitTask(ctx, family.ChildIdentity(0), plain.ID, ""); !errors.Is(err, services.ErrTaskNotActive) {
		t.Errorf("expected ErrTaskNotActive on second submit, got %v", err)
	}
}

func TestSubmitTaskPhoto_StoresPhoto(t *testing.T) {
	service, db, storage := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	task := testutil.CreateTask(t, db, family.Parent, family.Children[0], "Clean the room", "2.00", true)

	photo := services.Upload{Filename: "room.JPG", Size: 5, Content: strings.NewReader("image")}
	if err := service.SubmitTaskPhoto(context.Background(), family.ChildIdentity(0), task.ID, photo); err != nil {
		t.Fatalf("submitting photo: %v", err)
	}

	submission := submissionFor(t, db, task.ID)
	if submission.PhotoURL == nil || !strings.HasPrefix(*submission.PhotoURL, "/uploads/submissions/") {
		t.Fatalf("expected local photo reference, got %v", submission.PhotoURL)
	}

	relative := strings.TrimPrefix(*submission.PhotoURL, services.LocalUploadPrefix)
	content, err := os.ReadFile(filepath.Join(storage.Directory(), filepath.FromSlash(relative)))
	if err != nil {
		t.Fatalf("reading stored photo: %v", err)
	}
	if string(content) != "image" {
		t.Errorf("unexpected stored content %q", content)
	}
}

func TestSubmitTaskPhoto_Rejections(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	plain := testutil.CreateTask(t, db, family.Parent, family.Children[0], "Make the bed", "1.00", false)
	photoTask := testutil.CreateTask(t, db, family.Parent, family.Children[0], "Clean the room", "2.00", true)

	ctx := context.Background()
	photo := services.Upload{Filename: "room.png", Size: 5, Content: strings.NewReader("image")}

	if err := service.SubmitTaskPhoto(ctx, family.ChildIdentity(0), plain.ID, photo); !errors.Is(err, services.ErrPhotoNotRequired) {
		t.Errorf("expected ErrPhotoNotRequired, got %v", err)
	}
	if err := service.SubmitTaskPhoto(ctx, family.ChildIdentity(0), photoTask.ID, services.Upload{}); !errors.Is(err, services.ErrPhotoMissing) {
		t.Errorf("expected ErrPhotoMissing, got %v", err)
	}

	script := services.Upload{Filename: "room.exe", Size: 5, Content: strings.NewReader("image")}
	if err := service.SubmitTaskPhoto(ctx, family.ChildIdentity(0), photoTask.ID, script); !errors.Is(err, services.ErrUnsupportedFile) {
		t.Errorf("expected ErrUnsupportedFile, got %v", err)
	}
}

func TestApproveSubmission_PaysAndAwardsXP(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	child := family.Children[0]
	task := testutil.CreateTask(t, db, family.Parent, child, "Feed the cat", "5.00", false)
	ctx := context.Background()

	if err := service.SubmitTask(ctx, family.ChildIdentity(0), task.ID, "All done"); err != nil {
		t.Fatalf("submitting task: %v", err)
	}
	submission := submissionFor(t, db, task.ID)

	approval, err := service.ApproveSubmission(ctx, family.ParentIdentity(), submission.ID)
	if err != nil {
		t.Fatalf("approving submission: %v", err)
	}
	if !approval.Amount.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("expected amount 5.00, got %s", approval.Amount)
	}

	wallet := walletOf(t, db, child)
	if !wallet.Balance.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("expected balance 5.00, got %s", wallet.Balance)
	}

	entries, err := repository.NewLedgerRepository(db).FindRecent(ctx, wallet.ID, 10)
	if err != nil {
		t.Fatalf("finding ledger entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != models.LedgerCreditTask || entries[0].Description != "Task payment: Feed the cat" {
		t.Errorf("unexpected ledger entries: %+v", entries)
	}

	member, err := repository.NewMemberRepository(db).FindByID(ctx, child.ID)
	if err != nil {
		t.Fatalf("finding member: %v", err)
	}
	if member.XPBalance != services.XPPerApprovedTask {
		t.Errorf("expected xp balance %d, got %d", services.XPPerApprovedTask, member.XPBalance)
	}

	progress, err := repository.NewProgressRepository(db).FindByMember(ctx, child.ID)
	if err != nil {
		t.Fatalf("finding progress: %v", err)
	}
	if progress.CumulativeXP != 100 || progress.LevelXP != 100 || progress.Level != 1 || progress.LastTaskAt == nil {
		t.Errorf("unexpected progress: %+v", progress)
	}

	approved := submissionFor(t, db, task.ID)
	if approved.Status != models.SubmissionApproved || approved.ApprovedAt == nil {
		t.Errorf("expected approved submission, got %+v", approved)
	}
	if approved.ApprovedValue == nil || !approved.ApprovedValue.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("expected approved value 5.00, got %v", approved.ApprovedValue)
	}

	kinds := unreadKinds(t, db, child.UserID)
	if len(kinds) == 0 || kinds[0] != models.NotificationTaskApproved {
		t.Errorf("expected TAREFA_APROVADA first, got %v", kinds)
	}
}

func TestApproveSubmission_TwiceChangesNothing(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	child := family.Children[0]
	task := testutil.CreateTask(t, db, family.Parent, child, "Feed the cat", "5.00", false)
	ctx := context.Background()

	if err := service.SubmitTask(ctx, family.ChildIdentity(0), task.ID, ""); err != nil {
		t.Fatalf("submitting task: %v", err)
	}
	submission := submissionFor(t, db, task.ID)
	if _, err := service.ApproveSubmission(ctx, family.ParentIdentity(), submission.ID); err != nil {
		t.Fatalf("approving submission: %v", err)
	}

	_, err := service.ApproveSubmission(ctx, family.ParentIdentity(), submission.ID)
	if !errors.Is(err, services.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved, got %v", err)
	}

	wallet := walletOf(t, db, child)
	if !wallet.Balance.Equal(decimal.RequireFromString("5.00")) {
		t.Errorf("expected balance to stay 5.00, got %s", wallet.Balance)
	}
	member, err := repository.NewMemberRepository(db).FindByID(ctx, child.ID)
	if err != nil {
		t.Fatalf("finding member: %v", err)
	}
	if member.XPBalance != 100 {
		t.Errorf("expected xp to stay 100, got %d", member.XPBalance)
	}
}

func TestApproveSubmission_LevelsUpAtThreshold(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	child := family.Children[0]
	ctx := context.Background()

	progressRepo := repository.NewProgressRepository(db)
	progress, err := progressRepo.FindByMember(ctx, child.ID)
	if err != nil {
		t.Fatalf("finding progress: %v", err)
	}
	progress.LevelXP = 950
	progress.CumulativeXP = 950
	if err := progressRepo.Update(ctx, progress); err != nil {
		t.Fatalf("updating progress: %v", err)
	}

	task := testutil.CreateTask(t, db, family.Parent, child, "Mow the lawn", "10.00", false)
	if err := service.SubmitTask(ctx, family.ChildIdentity(0), task.ID, ""); err != nil {
		t.Fatalf("submitting task: %v", err)
	}

	approval, err := service.ApproveSubmission(ctx, family.ParentIdentity(), submissionFor(t, db, task.ID).ID)
	if err != nil {
		t.Fatalf("approving submission: %v", err)
	}
	if !approval.LeveledUp || approval.Progress.Level != 2 || approval.Progress.LevelXP != 50 {
		t.Errorf("expected level 2 with 50 xp, got %+v", approval.Progress)
	}
}

func TestApproveSubmission_OtherFamilyForbidden(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	other := testutil.CreateFamily(t, db, "Caio", "Duda")
	task := testutil.CreateTask(t, db, family.Parent, family.Children[0], "Feed the cat", "5.00", false)
	ctx := context.Background()

	if err := service.SubmitTask(ctx, family.ChildIdentity(0), task.ID, ""); err != nil {
		t.Fatalf("submitting task: %v", err)
	}

	_, err := service.ApproveSubmission(ctx, other.ParentIdentity(), submissionFor(t, db, task.ID).ID)
	if !errors.Is(err, services.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := service.ApproveSubmission(ctx, family.ParentIdentity(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectSubmission(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	child := family.Children[0]
	task := testutil.CreateTask(t, db, family.Parent, child, "Feed the cat", "5.00", false)
	ctx := context.Background()

	if err := service.SubmitTask(ctx, family.ChildIdentity(0), task.ID, ""); err != nil {
		t.Fatalf("submitting task: %v", err)
	}
	submission := submissionFor(t, db, task.ID)

	if err := service.RejectSubmission(ctx, family.ParentIdentity(), submission.ID); err != nil {
		t.Fatalf("rejecting submission: %v", err)
	}

	if status := submissionFor(t, db, task.ID).Status; status != models.SubmissionRejected {
		t.Errorf("expected REJECTED, got %s", status)
	}
	reloaded, err := repository.NewTaskRepository(db).FindByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("finding task: %v", err)
	}
	if reloaded.Status != models.TaskStatusInactive {
		t.Errorf("expected task to stay INACTIVE, got %s", reloaded.Status)
	}
	if !walletOf(t, db, child).Balance.IsZero() {
		t.Error("expected no payment on rejection")
	}

	if err := service.RejectSubmission(ctx, family.ParentIdentity(), submission.ID); !errors.Is(err, services.ErrAlreadyFinalized) {
		t.Errorf("expected ErrAlreadyFinalized, got %v", err)
	}
	if _, err := service.ApproveSubmission(ctx, family.ParentIdentity(), submission.ID); err != nil {
		t.Errorf("expected a rejected submission to remain approvable, got %v", err)
	}
	if err := service.RejectSubmission(ctx, family.ParentIdentity(), submission.ID); !errors.Is(err, services.ErrAlreadyFinalized) {
		t.Errorf("expected ErrAlreadyFinalized after approval, got %v", err)
	}
}

func TestSubmitTask_ResubmissionReusesRow(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	task := testutil.CreateTask(t, db, family.Parent, family.Children[0], "Feed the cat", "5.00", false)
	ctx := context.Background()

	if err := service.SubmitTask(ctx, family.ChildIdentity(0), task.ID, ""); err != nil {
		t.Fatalf("submitting task: %v", err)
	}
	first := submissionFor(t, db, task.ID)
	if err := service.RejectSubmission(ctx, family.ParentIdentity(), first.ID); err != nil {
		t.Fatalf("rejecting submission: %v", err)
	}

	if err := repository.NewTaskRepository(db).UpdateStatus(ctx, task.ID, models.TaskStatusActive); err != nil {
		t.Fatalf("reactivating task: %v", err)
	}
	if err := service.SubmitTask(ctx, family.ChildIdentity(0), task.ID, ""); err != nil {
		t.Fatalf("resubmitting task: %v", err)
	}

	second := submissionFor(t, db, task.ID)
	if second.ID != first.ID {
		t.Errorf("expected the same submission row, got %s and %s", first.ID, second.ID)
	}
	if second.Status != models.SubmissionPending || second.Note != "Resubmitted." {
		t.Errorf("expected pending resubmission, got %+v", second)
	}
}

func TestTaskListings(t *testing.T) {
	service, db, _ := setupTaskService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia", "Caio")
	testutil.CreateTask(t, db, family.Parent, family.Children[0], "Feed the cat", "5.00", false)
	submitted := testutil.CreateTask(t, db, family.Parent, family.Children[1], "Walk the dog", "4.00", false)
	ctx := context.Background()

	if err := service.SubmitTask(ctx, family.ChildIdentity(1), submitted.ID, ""); err != nil {
		t.Fatalf("submitting task: %v", err)
	}

	active, err := service.ActiveTasksForChildren(ctx, family.ParentIdentity())
	if err != nil {
		t.Fatalf("listing active tasks: %v", err)
	}
	if len(active) != 1 || active[0].Title != "Feed the cat" {
		t.Errorf("unexpected active tasks: %+v", active)
	}

	pending, err := service.PendingReviews(ctx, family.ParentIdentity())
	if err != nil {
		t.Fatalf("listing pending reviews: %v", err)
	}
	if len(pending) != 1 || pending[0].TaskTitle != "Walk the dog" || pending[0].ExecutorName != "Caio" {
		t.Errorf("unexpected pending reviews: %+v", pending)
	}

	childTasks, err := service.ChildTasks(ctx, family.ChildIdentity(1))
	if err != nil {
		t.Fatalf("listing child tasks: %v", err)
	}
	if len(childTasks) != 0 {
		t.Errorf("expected no open tasks for Caio, got %d", len(childTasks))
	}

	recent, err := service.RecentSubmissions(ctx, family.ChildIdentity(1), 10)
	if err != nil {
		t.Fatalf("listing recent submissions: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("expected one recent submission, got %d", len(recent))
	}
}

func TestApproveAndPay_BackfillMissingWalletAndProgress(t *testing.T) {
	service, db, _ := setupTaskService(t)
	wallets := services.NewWalletService(db, services.NewNotifier(db, nil), "BRL")
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	child := family.Children[0]
	task := testutil.CreateTask(t, db, family.Parent, child, "Tidy the room", "10.00", false)
	ctx := context.Background()

	for _, table := range []string{"wallets", "progress"} {
		if _, err := db.Exec("DELETE FROM "+table+" WHERE member_id = ?", child.ID); err != nil {
			t.Fatalf("deleting %s row: %v", table, err)
		}
	}

	if err := service.SubmitTask(ctx, family.ChildIdentity(0), task.ID, ""); err != nil {
		t.Fatalf("submitting task: %v", err)
	}
	if _, err := service.ApproveSubmission(ctx, family.ParentIdentity(), submissionFor(t, db, task.ID).ID); err != nil {
		t.Fatalf("approving submission: %v", err)
	}

	if balance := walletOf(t, db, child).Balance; !balance.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("expected recreated wallet with 10.00, got %s", balance)
	}
	progress, err := repository.NewProgressRepository(db).FindByMember(ctx, child.ID)
	if err != nil {
		t.Fatalf("finding recreated progress: %v", err)
	}
	if progress.Level != 1 || progress.LevelXP != 100 || progress.CumulativeXP != 100 {
		t.Errorf("unexpected progress: %+v", progress)
	}

	if _, err := wallets.PayChild(ctx, family.ParentIdentity(), child.ID, "10"); err != nil {
		t.Fatalf("paying child: %v", err)
	}
	if balance := walletOf(t, db, child).Balance; !balance.IsZero() {
		t.Errorf("expected empty wallet after payout, got %s", balance)
	}
}
