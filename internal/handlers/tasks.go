package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samuelogino/taskpay/internal/middleware"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/services"
)

const (
	maxUploadSize     = 10 << 20
	recentSubmissions = 10
)

type TaskHandler struct {
	taskService   *services.TaskService
	familyService *services.FamilyService
	renderer      *Renderer
}

func NewTaskHandler(taskService *services.TaskService, familyService *services.FamilyService, renderer *Renderer) *TaskHandler {
	return &TaskHandler{
		taskService:   taskService,
		familyService: familyService,
		renderer:      renderer,
	}
}

type taskFormData struct {
	Children   []models.Member
	Priorities []models.Priority
}

type parentTasksData struct {
	Active    []models.Task
	Pending   []models.SubmissionDetail
	ChildByID map[string]string
}

type childTasksData struct {
	Tasks  []models.Task
	Recent []models.SubmissionDetail
}

func (handler *TaskHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	handler.renderForm(w, r, http.StatusOK, Page{})
}

func (handler *TaskHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, page Page) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	children, err := handler.familyService.Children(ctx, identity.FamilyID)
	if err != nil {
		slog.Error("finding children for task form", "error", err)
	}

	page.Title = "New task"
	page.Data = taskFormData{
		Children:   children,
		Priorities: []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh},
	}
	handler.renderer.Render(w, r, status, "task_new", page)
}

func (handler *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	task, err := handler.taskService.CreateTask(ctx, identity, services.CreateTaskInput{
		Title:         r.FormValue("title"),
		Description:   r.FormValue("description"),
		ExecutorID:    r.FormValue("executor_id"),
		Priority:      models.Priority(r.FormValue("priority")),
		Icon:          r.FormValue("icon"),
		RequiresPhoto: r.FormValue("requires_photo") == "on",
		Value:         r.FormValue("value"),
		Deadline:      r.FormValue("deadline"),
	})

	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		handler.renderForm(w, r, http.StatusUnprocessableEntity, Page{Errors: validationErrors, Form: r.PostForm})
		return
	}
	if err != nil {
		handler.renderer.Fail(w, r, err, "/tasks/new", "creating task")
		return
	}

	handler.renderer.Redirect(w, r, services.FlashSuccess, fmt.Sprintf("Task %q created.", task.Title), "/parent/tasks")
}

func (handler *TaskHandler) ParentList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	active, err := handler.taskService.ActiveTasksForChildren(ctx, identity)
	if err != nil {
		slog.Error("finding active tasks", "error", err)
		http.Error(w, "Error loading tasks", http.StatusInternalServerError)
		return
	}
	pending, err := handler.taskService.PendingReviews(ctx, identity)
	if err != nil {
		slog.Error("finding pending reviews", "error", err)
		http.Error(w, "Error loading tasks", http.StatusInternalServerError)
		return
	}

	children, err := handler.familyService.Children(ctx, identity.FamilyID)
	if err != nil {
		slog.Error("finding children", "error", err)
	}
	childByID := make(map[string]string, len(children))
	for _, child := range children {
		childByID[child.ID] = child.Name
	}

	handler.renderer.Render(w, r, http.StatusOK, "parent_tasks", Page{
		Title: "Tasks",
		Data:  parentTasksData{Active: active, Pending: pending, ChildByID: childByID},
	})
}

func (handler *TaskHandler) ChildList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	tasks, err := handler.taskService.ChildTasks(ctx, identity)
	if err != nil {
		slog.Error("finding child tasks", "error", err)
		http.Error(w, "Error loading tasks", http.StatusInternalServerError)
		return
	}
	recent, err := handler.taskService.RecentSubmissions(ctx, identity, recentSubmissions)
	if err != nil {
		slog.Error("finding recent submissions", "error", err)
	}

	handler.renderer.Render(w, r, http.StatusOK, "child_tasks", Page{
		Title: "My tasks",
		Data:  childTasksData{Tasks: tasks, Recent: recent},
	})
}

func (handler *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	taskID := chi.URLParam(r, "id")

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	if err := handler.taskService.SubmitTask(ctx, identity, taskID, r.FormValue("note")); err != nil {
		handler.renderer.Fail(w, r, err, "/child/tasks", "submitting task")
		return
	}
	handler.renderer.Redirect(w, r, services.FlashSuccess, "Task sent for review.", "/home/child")
}

func (handler *TaskHandler) SubmitPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	taskID := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		handler.renderer.Redirect(w, r, services.FlashError, "The photo could not be uploaded.", "/child/tasks")
		return
	}

	photo, closePhoto, err := formUpload(r, "photo")
	if err != nil {
		handler.renderer.Redirect(w, r, services.FlashError, "The photo could not be uploaded.", "/child/tasks")
		return
	}
	defer closePhoto()

	if err := handler.taskService.SubmitTaskPhoto(ctx, identity, taskID, photo); err != nil {
		handler.renderer.Fail(w, r, err, "/child/tasks", "submitting task photo")
		return
	}
	handler.renderer.Redirect(w, r, services.FlashSuccess, "Photo sent for review.", "/home/child")
}

func (handler *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	approval, err := handler.taskService.ApproveSubmission(ctx, identity, chi.URLParam(r, "id"))
	if err != nil {
		handler.renderer.Fail(w, r, err, "/home/parent", "approving submission")
		return
	}

	message := fmt.Sprintf("Task %q approved: %s %s credited and %d XP awarded.",
		approval.Task.Title, handler.renderer.currency, services.FormatMoney(approval.Amount), services.XPPerApprovedTask)
	if approval.LeveledUp {
		message += fmt.Sprintf(" Level %d reached!", approval.Progress.Level)
	}
	handler.renderer.Redirect(w, r, services.FlashSuccess, message, "/home/parent")
}

func (handler *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	if err := handler.taskService.RejectSubmission(ctx, identity, chi.URLParam(r, "id")); err != nil {
		handler.renderer.Fail(w, r, err, "/home/parent", "rejecting submission")
		return
	}
	handler.renderer.Redirect(w, r, services.FlashWarning, "Submission rejected.", "/home/parent")
}
