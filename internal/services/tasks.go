package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
	"github.com/shopspring/decimal"
)

var (
	ErrTaskNotActive    = errors.New("task is not active")
	ErrPhotoRequired    = errors.New("task requires a photo")
	ErrPhotoNotRequired = errors.New("task does not take a photo")
	ErrPhotoMissing     = errors.New("no photo uploaded")
	ErrAlreadyApproved  = errors.New("submission already approved")
	ErrAlreadyFinalized = errors.New("submission already reviewed")
)

const (
	noteSubmitted   = "Done."
	noteResubmitted = "Resubmitted."
)

var deadlineLayouts = []string{"2006-01-02T15:04", "2006-01-02"}

type CreateTaskInput struct {
	Title         string          `form:"title" validate:"required,max=150"`
	Description   string          `form:"description" validate:"max=1000"`
	ExecutorID    string          `form:"executor_id" validate:"required"`
	Priority      models.Priority `form:"priority" validate:"required,oneof=LOW MEDIUM HIGH"`
	Icon          string          `form:"icon" validate:"required,max=30"`
	RequiresPhoto bool            `form:"requires_photo"`
	Value         string          `form:"value"`
	Deadline      string          `form:"deadline"`
}

// Approval describes what an approved submission paid out.
type Approval struct {
	Task      models.Task
	Amount    decimal.Decimal
	Progress  models.Progress
	LeveledUp bool
}

type TaskService struct {
	database *sql.DB
	storage  Storage
	notifier *Notifier
	currency string
	now      func() time.Time
}

func NewTaskService(db *sql.DB, storage Storage, notifier *Notifier, currency string) *TaskService {
	return &TaskService{
		database: db,
		storage:  storage,
		notifier: notifier,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (service *TaskService) CreateTask(ctx context.Context, parent models.Identity, input CreateTaskInput) (models.Task, error) {
	if !parent.IsParent() {
		return models.Task{}, ErrForbidden
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Icon = strings.TrimSpace(input.Icon)
	if err := validateInput(input); err != nil {
		return models.Task{}, err
	}

	var created models.Task
	var box *outbox
	err := database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		executor, err := repository.NewMemberRepository(transaction).FindByID(ctx, input.ExecutorID)
		if repository.IsNotFound(err) {
			return ErrForbidden
		}
		if err != nil {
			return err
		}
		if executor.FamilyID != parent.FamilyID || executor.Role != models.RoleChild {
			return ErrForbidden
		}

		created, err = repository.NewTaskRepository(transaction).Create(ctx, models.Task{
			Title:         input.Title,
			Description:   strings.TrimSpace(input.Description),
			BaseValue:     ParseMoney(input.Value),
			Status:        models.TaskStatusActive,
			RequiresPhoto: input.RequiresPhoto,
			Deadline:      parseDeadline(input.Deadline),
			Priority:      input.Priority,
			Icon:          input.Icon,
			CreatorID:     parent.MemberID,
			ExecutorID:    &executor.ID,
		})
		if err != nil {
			return err
		}

		box = newOutbox(transaction)
		return box.notify(ctx, executor.UserID, models.NotificationNewTask,
			fmt.Sprintf("New task from %s: %s", parent.Name, created.Title))
	})
	if err != nil {
		return models.Task{}, fmt.Errorf("creating task: %w", err)
	}

	service.notifier.Deliver(ctx, box.created)
	return created, nil
}

func parseDeadline(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range deadlineLayouts {
		if deadline, err := time.Parse(layout, raw); err == nil {
			return &deadline
		}
	}
	slog.Debug("ignoring unparsable deadline", "deadline", raw)
	return nil
}

// SubmitTask files a task that needs no photo for review.
func (service *TaskService) SubmitTask(ctx context.Context, child models.Identity, taskID string, note string) error {
	if err := service.submit(ctx, child, taskID, note, nil, false); err != nil {
		return fmt.Errorf("submitting task: %w", err)
	}
	return nil
}

// SubmitTaskPhoto stores the photo and files the task for review. The photo
// is removed again if the submission cannot be recorded.
func (service *TaskService) SubmitTaskPhoto(ctx context.Context, child models.Identity, taskID string, photo Upload) error {
	task, err := repository.NewTaskRepository(service.database).FindByID(ctx, taskID)
	if repository.IsNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("submitting task photo: %w", err)
	}
	if err := checkSubmittable(task, child, true); err != nil {
		return err
	}
	if photo.Empty() {
		return ErrPhotoMissing
	}

	reference, err := service.storage.Save(ctx, FolderSubmissions, photo)
	if err != nil {
		return fmt.Errorf("storing submission photo: %w", err)
	}

	if err := service.submit(ctx, child, taskID, "", &reference, true); err != nil {
		if deleteErr := service.storage.Delete(ctx, reference); deleteErr != nil {
			slog.Warn("removing orphaned submission photo", "error", deleteErr, "reference", reference)
		}
		return fmt.Errorf("submitting task photo: %w", err)
	}
	return nil
}

func (service *TaskService) submit(ctx context.Context, child models.Identity, taskID string, note string, photoURL *string, withPhoto bool) error {
	var box *outbox
	err := database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		tasks := repository.NewTaskRepository(transaction)
		submissions := repository.NewSubmissionRepository(transaction)

		task, err := tasks.FindByID(ctx, taskID)
		if repository.IsNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := checkSubmittable(task, child, withPhoto); err != nil {
			return err
		}

		_, err = submissions.FindByTask(ctx, task.ID)
		resubmission := err == nil
		if err != nil && !repository.IsNotFound(err) {
			return err
		}

		note = strings.TrimSpace(note)
		if note == "" {
			note = noteSubmitted
			if resubmission {
				note = noteResubmitted
			}
		}

		if err := tasks.UpdateStatus(ctx, task.ID, models.TaskStatusInactive); err != nil {
			return err
		}
		if _, err := submissions.Upsert(ctx, models.Submission{
			TaskID:      task.ID,
			Note:        note,
			PhotoURL:    photoURL,
			SubmittedAt: service.now(),
		}); err != nil {
			return err
		}

		box = newOutbox(transaction)
		return box.notifyFamily(ctx, child.FamilyID, models.RoleParent, models.NotificationTaskPending,
			fmt.Sprintf("%s finished the task %q and is waiting for your review.", child.Name, task.Title))
	})
	if err != nil {
		return err
	}

	service.notifier.Deliver(ctx, box.created)
	return nil
}

func checkSubmittable(task models.Task, child models.Identity, withPhoto bool) error {
	if !child.IsChild() || task.ExecutorID == nil || *task.ExecutorID != child.MemberID {
		return ErrForbidden
	}
	if task.Status != models.TaskStatusActive {
		return ErrTaskNotActive
	}
	if withPhoto && !task.RequiresPhoto {
		return ErrPhotoNotRequired
	}
	if !withPhoto && task.RequiresPhoto {
		return ErrPhotoRequired
	}
	return nil
}

// reviewTarget loads a submission with its task and executor and checks the
// parent may review it.
func reviewTarget(ctx context.Context, transaction *sql.Tx, parent models.Identity, submissionID string) (models.Submission, models.Task, models.Member, error) {
	submission, err := repository.NewSubmissionRepository(transaction).FindByID(ctx, submissionID)
	if repository.IsNotFound(err) {
		return models.Submission{}, models.Task{}, models.Member{}, ErrNotFound
	}
	if err != nil {
		return models.Submission{}, models.Task{}, models.Member{}, err
	}

	task, err := repository.NewTaskRepository(transaction).FindByID(ctx, submission.TaskID)
	if err != nil {
		return models.Submission{}, models.Task{}, models.Member{}, err
	}
	if task.ExecutorID == nil {
		return models.Submission{}, models.Task{}, models.Member{}, ErrNotFound
	}

	executor, err := repository.NewMemberRepository(transaction).FindByID(ctx, *task.ExecutorID)
	if err != nil {
		return models.Submission{}, models.Task{}, models.Member{}, err
	}
	if !parent.IsParent() || executor.FamilyID != parent.FamilyID {
		return models.Submission{}, models.Task{}, models.Member{}, ErrForbidden
	}
	return submission, task, executor, nil
}

// ApproveSubmission pays the task value into the child's wallet, awards XP
// and records the approval. Approving twice returns ErrAlreadyApproved and
// changes nothing.
func (service *TaskService) ApproveSubmission(ctx context.Context, parent models.Identity, submissionID string) (Approval, error) {
	var approval Approval
	var box *outbox
	err := database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		submission, task, executor, err := reviewTarget(ctx, transaction, parent, submissionID)
		if err != nil {
			return err
		}
		if submission.Status == models.SubmissionApproved {
			return ErrAlreadyApproved
		}

		now := service.now()
		changed, err := repository.NewSubmissionRepository(transaction).MarkApproved(ctx, submission.ID, task.BaseValue, now)
		if err != nil {
			return err
		}
		if !changed {
			return ErrAlreadyApproved
		}

		if err := creditWallet(ctx, transaction, executor.ID, service.currency, models.LedgerCreditTask,
			task.BaseValue, "Task payment: "+task.Title, now); err != nil {
			return err
		}

		if err := repository.NewMemberRepository(transaction).AddXP(ctx, executor.ID, XPPerApprovedTask); err != nil {
			return err
		}

		progressRepo := repository.NewProgressRepository(transaction)
		progress, err := progressRepo.Ensure(ctx, executor.ID)
		if err != nil {
			return err
		}
		previousLevel := progress.Level
		progress = ApplyApproval(progress, now)
		if err := progressRepo.Update(ctx, progress); err != nil {
			return err
		}

		approval = Approval{
			Task:      task,
			Amount:    task.BaseValue,
			Progress:  progress,
			LeveledUp: progress.Level > previousLevel,
		}

		box = newOutbox(transaction)
		return box.notify(ctx, executor.UserID, models.NotificationTaskApproved,
			fmt.Sprintf("Task %q approved! You earned %s and %d XP.", task.Title, FormatMoney(task.BaseValue), XPPerApprovedTask))
	})
	if err != nil {
		return Approval{}, fmt.Errorf("approving submission: %w", err)
	}

	service.notifier.Deliver(ctx, box.created)
	return approval, nil
}

// RejectSubmission marks a pending submission rejected. The task stays
// inactive.
func (service *TaskService) RejectSubmission(ctx context.Context, parent models.Identity, submissionID string) error {
	var box *outbox
	err := database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		submission, task, executor, err := reviewTarget(ctx, transaction, parent, submissionID)
		if err != nil {
			return err
		}
		if submission.Status == models.SubmissionApproved || submission.Status == models.SubmissionRejected {
			return ErrAlreadyFinalized
		}

		changed, err := repository.NewSubmissionRepository(transaction).MarkRejected(ctx, submission.ID)
		if err != nil {
			return err
		}
		if !changed {
			return ErrAlreadyFinalized
		}

		box = newOutbox(transaction)
		return box.notify(ctx, executor.UserID, models.NotificationTaskRejected,
			fmt.Sprintf("Task %q was not approved this time.", task.Title))
	})
	if err != nil {
		return fmt.Errorf("rejecting submission: %w", err)
	}

	service.notifier.Deliver(ctx, box.created)
	return nil
}

// ActiveTasksForChildren lists the family's active tasks, nearest deadline first.
func (service *TaskService) ActiveTasksForChildren(ctx context.Context, parent models.Identity) ([]models.Task, error) {
	if !parent.IsParent() {
		return nil, ErrForbidden
	}
	active := models.TaskStatusActive
	tasks, err := repository.NewTaskRepository(service.database).FindAll(ctx, repository.TaskFilter{
		FamilyID: &parent.FamilyID,
		Status:   &active,
		OrderBy:  repository.OrderByDeadlineAsc,
	})
	if err != nil {
		return nil, fmt.Errorf("listing active tasks: %w", err)
	}
	return tasks, nil
}

func (service *TaskService) PendingReviews(ctx context.Context, parent models.Identity) ([]models.SubmissionDetail, error) {
	if !parent.IsParent() {
		return nil, ErrForbidden
	}
	pending := models.SubmissionPending
	details, err := repository.NewSubmissionRepository(service.database).FindDetails(ctx, repository.SubmissionFilter{
		FamilyID: &parent.FamilyID,
		Status:   &pending,
	})
	if err != nil {
		return nil, fmt.Errorf("listing pending reviews: %w", err)
	}
	return details, nil
}

// ChildTasks lists the tasks a child can still submit.
func (service *TaskService) ChildTasks(ctx context.Context, child models.Identity) ([]models.Task, error) {
	if !child.IsChild() {
		return nil, ErrForbidden
	}
	active := models.TaskStatusActive
	tasks, err := repository.NewTaskRepository(service.database).FindAll(ctx, repository.TaskFilter{
		ExecutorID: &child.MemberID,
		Status:     &active,
		OrderBy:    repository.OrderByDeadlineAsc,
	})
	if err != nil {
		return nil, fmt.Errorf("listing child tasks: %w", err)
	}
	return tasks, nil
}

func (service *TaskService) RecentSubmissions(ctx context.Context, child models.Identity, limit int) ([]models.SubmissionDetail, error) {
	details, err := repository.NewSubmissionRepository(service.database).FindDetails(ctx, repository.SubmissionFilter{
		ExecutorID: &child.MemberID,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing recent submissions: %w", err)
	}
	return details, nil
}
