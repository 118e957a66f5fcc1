package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
	"github.com/samuelogino/taskpay/internal/services"
	"github.com/samuelogino/taskpay/internal/testutil"
	"github.com/shopspring/decimal"
)

func TestCalendarFeed_ListsActiveDeadlines(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	service := services.NewCalendarService(db, "BRL")
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	ctx := context.Background()
	tasks := repository.NewTaskRepository(db)

	deadline := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	create := func(title string, deadline *time.Time, status models.TaskStatus) {
		t.Helper()
		_, err := tasks.Create(ctx, models.Task{
			Title:      title,
			BaseValue:  decimal.RequireFromString("2.50"),
			Status:     status,
			Deadline:   deadline,
			Priority:   models.PriorityLow,
			Icon:       "star",
			CreatorID:  family.Parent.ID,
			ExecutorID: &family.Children[0].ID,
		})
		if err != nil {
			t.Fatalf("creating task %s: %v", title, err)
		}
	}
	create("Water plants", &deadline, models.TaskStatusActive)
	create("No deadline", nil, models.TaskStatusActive)
	create("Already done", &deadline, models.TaskStatusInactive)

	feed, err := service.Feed(ctx, family.Family.ID)
	if err != nil {
		t.Fatalf("building feed: %v", err)
	}

	calendar, err := ical.ParseCalendar(strings.NewReader(feed))
	if err != nil {
		t.Fatalf("parsing feed: %v", err)
	}
	events := calendar.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	summary := events[0].GetProperty(ical.ComponentPropertySummary)
	if summary == nil || summary.Value != "[Bia] Water plants" {
		t.Errorf("unexpected summary: %+v", summary)
	}
	start := events[0].GetProperty(ical.ComponentPropertyDtStart)
	if start == nil || start.Value != "20250601" {
		t.Errorf("expected all-day start 20250601, got %+v", start)
	}
}

func TestCalendarFeed_UnknownFamily(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	service := services.NewCalendarService(db, "BRL")

	if _, err := service.Feed(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
