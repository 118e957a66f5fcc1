package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
)

// CalendarService exports a family's active task deadlines as an iCalendar feed.
type CalendarService struct {
	familyRepo repository.FamilyRepository
	taskRepo   repository.TaskRepository
	memberRepo repository.MemberRepository
	currency   string
	now        func() time.Time
}

func NewCalendarService(db *sql.DB, currency string) *CalendarService {
	return &CalendarService{
		familyRepo: repository.NewFamilyRepository(db),
		taskRepo:   repository.NewTaskRepository(db),
		memberRepo: repository.NewMemberRepository(db),
		currency:   currency,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (service *CalendarService) Feed(ctx context.Context, familyID string) (string, error) {
	family, err := service.familyRepo.FindByID(ctx, familyID)
	if repository.IsNotFound(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading family: %w", err)
	}

	active := models.TaskStatusActive
	tasks, err := service.taskRepo.FindAll(ctx, repository.TaskFilter{
		FamilyID:     &family.ID,
		Status:       &active,
		WithDeadline: true,
		OrderBy:      repository.OrderByDeadlineAsc,
	})
	if err != nil {
		return "", fmt.Errorf("loading tasks: %w", err)
	}

	children, err := service.memberRepo.FindByFamily(ctx, family.ID, models.RoleChild)
	if err != nil {
		return "", fmt.Errorf("loading children: %w", err)
	}
	names := make(map[string]string, len(children))
	for _, child := range children {
		names[child.ID] = child.Name
	}

	calendar := ical.NewCalendar()
	calendar.SetMethod(ical.MethodPublish)
	calendar.SetProductId("-//TaskPay//Task deadlines//EN")
	calendar.SetXWRCalName(family.Name + " tasks")

	stamp := service.now()
	for _, task := range tasks {
		if task.Deadline == nil {
			continue
		}

		event := calendar.AddEvent(task.ID + "@taskpay")
		event.SetDtStampTime(stamp)
		event.SetSummary(eventSummary(task, names))
		event.SetDescription(eventDescription(task, service.currency))
		event.SetAllDayStartAt(*task.Deadline)
		event.SetAllDayEndAt(task.Deadline.AddDate(0, 0, 1))
	}

	return calendar.Serialize(), nil
}

func eventSummary(task models.Task, names map[string]string) string {
	if task.ExecutorID != nil {
		if name, ok := names[*task.ExecutorID]; ok {
			return fmt.Sprintf("[%s] %s", name, task.Title)
		}
	}
	return task.Title
}

func eventDescription(task models.Task, currency string) string {
	parts := []string{"Value: " + currency + " " + FormatMoney(task.BaseValue)}
	if task.Description != "" {
		parts = append(parts, task.Description)
	}
	if task.RequiresPhoto {
		parts = append(parts, "Photo proof required")
	}
	return strings.Join(parts, "\n")
}
