package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appterrors "sentinel/internal/appointments/errors"
	"sentinel/internal/availability"
	"sentinel/pkg/config"
	mongotx "sentinel/pkg/db/mongo"
	apperrors "sentinel/pkg/errors"
	"sentinel/pkg/logger"
	"sentinel/pkg/model"
	"sentinel/pkg/notify"

	"go.mongodb.org/mongo-driver/mongo"
)

type mockAppointmentRepository struct {
	insertFn                func(ctx context.Context, appointment *model.Appointment) error
	findByIDFn              func(ctx context.Context, id string) (*model.Appointment, error)
	findActiveOverlappingFn func(ctx context.Context, start, end time.Time, excludeID string) ([]*model.Appointment, error)
	updateFn                func(ctx context.Context, appointment *model.Appointment) error
	updateWithVersionFn     func(ctx context.Context, appointment *model.Appointment, expectedVersion int64) error

	mu       sync.Mutex
	inserted *model.Appointment
	updated  *model.Appointment
}

func (m *mockAppointmentRepository) Insert(ctx context.Context, appointment *model.Appointment) error {
	m.mu.Lock()
	m.inserted = appointment
	m.mu.Unlock()
	if m.insertFn != nil {
		return m.insertFn(ctx, appointment)
	}
	return nil
}

func (m *mockAppointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, appterrors.ErrNotFound
}

func (m *mockAppointmentRepository) FindActiveOverlapping(ctx context.Context, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
	if m.findActiveOverlappingFn != nil {
		return m.findActiveOverlappingFn(ctx, start, end, excludeID)
	}
	return nil, nil
}

func (m *mockAppointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	m.mu.Lock()
	m.updated = appointment
	m.mu.Unlock()
	if m.updateFn != nil {
		return m.updateFn(ctx, appointment)
	}
	return nil
}

func (m *mockAppointmentRepository) UpdateWithVersion(ctx context.Context, appointment *model.Appointment, expectedVersion int64) error {
	m.mu.Lock()
	m.updated = appointment
	m.mu.Unlock()
	if m.updateWithVersionFn != nil {
		return m.updateWithVersionFn(ctx, appointment, expectedVersion)
	}
	return nil
}

func (m *mockAppointmentRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	sessCtx := mongo.NewSessionContext(ctx, nil)
	return fn(sessCtx)
}

type mockClientRepository struct {
	findByPhoneFn func(ctx context.Context, phone string) (*model.Client, error)

	mu       sync.Mutex
	upserted *model.Client
}

func (m *mockClientRepository) Upsert(ctx context.Context, client *model.Client) error {
	m.mu.Lock()
	m.upserted = client
	m.mu.Unlock()
	return nil
}

func (m *mockClientRepository) FindByPhone(ctx context.Context, phone string) (*model.Client, error) {
	if m.findByPhoneFn != nil {
		return m.findByPhoneFn(ctx, phone)
	}
	return nil, nil
}

type mockSlotClaimRepository struct {
	claimFn func(ctx context.Context, appointmentID string, cells []string) error

	mu            sync.Mutex
	claimedCells  []string
	claimedFor    string
	releasedFor   []string
	claimAttempts int
}

func (m *mockSlotClaimRepository) Claim(ctx context.Context, appointmentID string, cells []string) error {
	m.mu.Lock()
	m.claimAttempts++
	m.claimedFor = appointmentID
	m.claimedCells = cells
	m.mu.Unlock()
	if m.claimFn != nil {
		return m.claimFn(ctx, appointmentID, cells)
	}
	return nil
}

func (m *mockSlotClaimRepository) ReleaseByAppointment(ctx context.Context, appointmentID string) error {
	m.mu.Lock()
	m.releasedFor = append(m.releasedFor, appointmentID)
	m.mu.Unlock()
	return nil
}

type mockLockRepository struct {
	acquireFn func(ctx context.Context, appointmentID string) error
	acquired  []string
	released  []string
}

func (m *mockLockRepository) Acquire(ctx context.Context, appointmentID string) error {
	if m.acquireFn != nil {
		if err := m.acquireFn(ctx, appointmentID); err != nil {
			return err
		}
	}
	m.acquired = append(m.acquired, appointmentID)
	return nil
}

func (m *mockLockRepository) Release(ctx context.Context, appointmentID string) error {
	m.released = append(m.released, appointmentID)
	return nil
}

type mockScanner struct {
	nextAvailableFn func(ctx context.Context, requestedStart time.Time, durationMinutes int, excludeID string) (*time.Time, error)
}

func (m *mockScanner) NextAvailable(ctx context.Context, requestedStart time.Time, durationMinutes int, excludeID string) (*time.Time, error) {
	if m.nextAvailableFn != nil {
		return m.nextAvailableFn(ctx, requestedStart, durationMinutes, excludeID)
	}
	return nil, nil
}

type mockPushGateway struct {
	err error

	mu   sync.Mutex
	sent []notify.PendingApprovalNotification
}

func (m *mockPushGateway) SendPendingApproval(ctx context.Context, n notify.PendingApprovalNotification) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
	return nil
}

type mockWebhookClient struct {
	posted []notify.ConfirmationPayload
	urls   []string
	err    error
}

func (m *mockWebhookClient) PostConfirmation(ctx context.Context, url string, payload notify.ConfirmationPayload) error {
	if m.err != nil {
		return m.err
	}
	m.urls = append(m.urls, url)
	m.posted = append(m.posted, payload)
	return nil
}

type serviceFixture struct {
	appointments *mockAppointmentRepository
	clients      *mockClientRepository
	claims       *mockSlotClaimRepository
	locks        *mockLockRepository
	scanner      *mockScanner
	push         *mockPushGateway
	webhooks     *mockWebhookClient
	service      AppointmentService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		appointments: &mockAppointmentRepository{},
		clients:      &mockClientRepository{},
		claims:       &mockSlotClaimRepository{},
		locks:        &mockLockRepository{},
		scanner:      &mockScanner{},
		push:         &mockPushGateway{},
		webhooks:     &mockWebhookClient{},
	}

	cfg := &config.Config{
		SlotMinutes:   30,
		HorizonDays:   30,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}

	f.service = NewAppointmentService(
		f.appointments, f.clients, f.claims, f.locks,
		f.scanner, f.push, f.webhooks,
		cfg, logger.Discard(),
	)
	return f
}

func bookCommand() *model.AgentCommand {
	return &model.AgentCommand{
		Action:    model.ActionBook,
		AuditTier: "tier2",
		Client: &model.CommandClient{
			Name:        "Dana Levi",
			PhoneNumber: "+14155550123",
		},
		RequestedStart:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
	}
}

func pendingAppointment(id string, version int64, action string) *model.Appointment {
	appt := &model.Appointment{
		ID:            id,
		ClientPhone:   "+14155550123",
		StartTime:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Status:        model.StatusPendingApproval,
		PendingAction: action,
		Version:       version,
	}
	switch action {
	case model.ActionBook:
		appt.PendingChange = model.NewBookChange(60, appt.ClientPhone)
	case model.ActionCancel:
		appt.PendingChange = model.NewCancelChange("", model.StatusConfirmed)
	case model.ActionModify:
		appt.PendingChange = model.NewModifyChange(appt.StartTime, appt.EndTime, model.StatusConfirmed, 60)
	}
	return appt
}

func TestBookCreatesPendingAppointment(t *testing.T) {
	f := newServiceFixture()

	result, err := f.service.HandleAgentAction(context.Background(), bookCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != model.ResultPendingApproval {
		t.Errorf("expected status %q, got %q", model.ResultPendingApproval, result.Status)
	}
	if result.Version != 1 {
		t.Errorf("expected version 1, got %d", result.Version)
	}

	appt := f.appointments.inserted
	if appt == nil {
		t.Fatal("expected an appointment insert")
	}
	if appt.Status != model.StatusPendingApproval || appt.PendingAction != model.ActionBook {
		t.Errorf("expected pending book, got status=%q action=%q", appt.Status, appt.PendingAction)
	}
	if appt.RequestedByChannel != model.ChannelAIAgent {
		t.Errorf("expected channel ai_agent, got %q", appt.RequestedByChannel)
	}
	if !appt.EndTime.Equal(appt.StartTime.Add(60 * time.Minute)) {
		t.Errorf("expected end = start + 60m, got %v -> %v", appt.StartTime, appt.EndTime)
	}

	if f.clients.upserted == nil || f.clients.upserted.PhoneNumber != "+14155550123" {
		t.Errorf("expected client upsert, got %+v", f.clients.upserted)
	}
	if f.claims.claimedFor != appt.ID || len(f.claims.claimedCells) != 2 {
		t.Errorf("expected 2 slot cells claimed for %s, got %d for %s", appt.ID, len(f.claims.claimedCells), f.claims.claimedFor)
	}
	if len(f.push.sent) != 1 || f.push.sent[0].Action != model.ActionBook {
		t.Errorf("expected one pending-approval push, got %+v", f.push.sent)
	}
}

func TestBookConflictProposesNextSlot(t *testing.T) {
	f := newServiceFixture()

	f.appointments.findActiveOverlappingFn = func(ctx context.Context, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
		return []*model.Appointment{pendingAppointment("busy", 1, model.ActionBook)}, nil
	}
	proposed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.scanner.nextAvailableFn = func(ctx context.Context, requestedStart time.Time, durationMinutes int, excludeID string) (*time.Time, error) {
		return &proposed, nil
	}

	result, err := f.service.HandleAgentAction(context.Background(), bookCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != model.ResultConflict {
		t.Fatalf("expected conflict, got %q", result.Status)
	}
	if result.ProposedTime == nil || !result.ProposedTime.Equal(proposed) {
		t.Errorf("expected proposed time %v, got %v", proposed, result.ProposedTime)
	}
	if f.appointments.inserted != nil {
		t.Error("expected no insert on conflict")
	}
	if len(f.push.sent) != 0 {
		t.Error("expected no push on conflict")
	}
}

func TestBookSlotRaceFallsBackToConflict(t *testing.T) {
	f := newServiceFixture()

	// Pre-check sees a free window but the claim collides at commit time.
	f.claims.claimFn = func(ctx context.Context, appointmentID string, cells []string) error {
		return appterrors.ErrSlotTaken
	}

	result, err := f.service.HandleAgentAction(context.Background(), bookCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.ResultConflict {
		t.Fatalf("expected conflict after slot race, got %q", result.Status)
	}
	if len(f.push.sent) != 0 {
		t.Error("expected no push after slot race")
	}
}

func TestBookConcurrentSameSlotOneWins(t *testing.T) {
	f := newServiceFixture()

	// The claim map plays the store's unique-cell constraint: first writer
	// takes the cells, the second collides.
	var claimMu sync.Mutex
	claimed := make(map[string]string)
	f.claims.claimFn = func(ctx context.Context, appointmentID string, cells []string) error {
		claimMu.Lock()
		defer claimMu.Unlock()
		for _, cell := range cells {
			if _, taken := claimed[cell]; taken {
				return appterrors.ErrSlotTaken
			}
		}
		for _, cell := range cells {
			claimed[cell] = appointmentID
		}
		return nil
	}

	results := make([]*model.AgentActionResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.service.HandleAgentAction(context.Background(), bookCommand())
		}(i)
	}
	wg.Wait()

	pending, conflict := 0, 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("unexpected error from booking %d: %v", i, errs[i])
		}
		switch results[i].Status {
		case model.ResultPendingApproval:
			pending++
		case model.ResultConflict:
			conflict++
		default:
			t.Fatalf("unexpected status %q", results[i].Status)
		}
	}
	if pending != 1 || conflict != 1 {
		t.Fatalf("expected exactly one pending and one conflict, got pending=%d conflict=%d", pending, conflict)
	}
	if len(f.push.sent) != 1 {
		t.Errorf("expected a single pending-approval push, got %d", len(f.push.sent))
	}
}

type noOverrides struct{}

func (noOverrides) FindRange(ctx context.Context, fromDay, toDay string) (map[string]*model.AvailabilityOverride, error) {
	return nil, nil
}

func TestBookFullyBookedDayProposesNextMorning(t *testing.T) {
	f := newServiceFixture()

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	busy := []*model.Appointment{
		{ID: "morning", Status: model.StatusConfirmed, StartTime: day.Add(9*time.Hour + 30*time.Minute), EndTime: day.Add(13 * time.Hour)},
		{ID: "same-slot", Status: model.StatusConfirmed, StartTime: day.Add(13 * time.Hour), EndTime: day.Add(14 * time.Hour)},
		{ID: "afternoon", Status: model.StatusConfirmed, StartTime: day.Add(14 * time.Hour), EndTime: day.Add(18 * time.Hour)},
	}
	f.appointments.findActiveOverlappingFn = func(ctx context.Context, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
		var overlapping []*model.Appointment
		for _, appt := range busy {
			if model.Overlaps(start, end, appt.StartTime, appt.EndTime) {
				overlapping = append(overlapping, appt)
			}
		}
		return overlapping, nil
	}

	cfg := &config.Config{
		SlotMinutes:   30,
		HorizonDays:   30,
		OpenHour:      9,
		OpenMinute:    30,
		CloseHour:     18,
		CloseMinute:   0,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
	scanner := availability.NewScanner(f.appointments, noOverrides{}, cfg, logger.Discard())
	svc := NewAppointmentService(
		f.appointments, f.clients, f.claims, f.locks,
		scanner, f.push, f.webhooks,
		cfg, logger.Discard(),
	)

	cmd := bookCommand()
	cmd.RequestedStart = day.Add(13 * time.Hour)

	result, err := svc.HandleAgentAction(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != model.ResultConflict {
		t.Fatalf("expected conflict, got %q", result.Status)
	}
	if result.RequestedTime == nil || !result.RequestedTime.Equal(cmd.RequestedStart) {
		t.Errorf("expected requested time echoed, got %v", result.RequestedTime)
	}
	nextMorning := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if result.ProposedTime == nil || !result.ProposedTime.Equal(nextMorning) {
		t.Errorf("expected next morning opening %v proposed, got %v", nextMorning, result.ProposedTime)
	}
	if f.appointments.inserted != nil {
		t.Error("expected no insert on conflict")
	}
}

func TestBookRetriesTransientConflictCheck(t *testing.T) {
	f := newServiceFixture()

	attempts := 0
	f.appointments.findActiveOverlappingFn = func(ctx context.Context, start, end time.Time, excludeID string) ([]*model.Appointment, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection reset")
		}
		return nil, nil
	}

	result, err := f.service.HandleAgentAction(context.Background(), bookCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.ResultPendingApproval {
		t.Errorf("expected pending result after retry, got %q", result.Status)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestCancelMarksPending(t *testing.T) {
	f := newServiceFixture()

	existing := &model.Appointment{
		ID:        "b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b",
		Status:    model.StatusConfirmed,
		StartTime: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Version:   3,
	}
	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return existing, nil
	}

	cmd := &model.AgentCommand{
		Action:        model.ActionCancel,
		AuditTier:     "tier1",
		AppointmentID: existing.ID,
		Reason:        "client request",
	}

	result, err := f.service.HandleAgentAction(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != model.ResultPendingApproval {
		t.Fatalf("expected pending, got %q", result.Status)
	}
	if result.Version != 4 {
		t.Errorf("expected version 4, got %d", result.Version)
	}

	updated := f.appointments.updated
	if updated.Status != model.StatusPendingApproval || updated.PendingAction != model.ActionCancel {
		t.Errorf("expected pending cancel, got status=%q action=%q", updated.Status, updated.PendingAction)
	}
	if updated.PendingChange == nil || updated.PendingChange.Cancel == nil {
		t.Fatal("expected cancel change snapshot")
	}
	if updated.PendingChange.Cancel.PreviousStatus != model.StatusConfirmed {
		t.Errorf("expected previous status confirmed, got %q", updated.PendingChange.Cancel.PreviousStatus)
	}
	if updated.PendingChange.Cancel.Reason != "client request" {
		t.Errorf("expected reason preserved, got %q", updated.PendingChange.Cancel.Reason)
	}

	if len(f.locks.acquired) != 1 || len(f.locks.released) != 1 {
		t.Errorf("expected lock acquire+release, got %v / %v", f.locks.acquired, f.locks.released)
	}
}

func TestCancelPushCarriesClientIdentity(t *testing.T) {
	f := newServiceFixture()

	existing := &model.Appointment{
		ID:          "b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b",
		ClientPhone: "+14155550123",
		Status:      model.StatusConfirmed,
		StartTime:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Version:     1,
	}
	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return existing, nil
	}
	f.clients.findByPhoneFn = func(ctx context.Context, phone string) (*model.Client, error) {
		if phone != existing.ClientPhone {
			t.Errorf("expected lookup by %q, got %q", existing.ClientPhone, phone)
		}
		return &model.Client{PhoneNumber: phone, Name: "Dana Levi"}, nil
	}

	cmd := &model.AgentCommand{
		Action:        model.ActionCancel,
		AuditTier:     "tier2",
		AppointmentID: existing.ID,
	}
	if _, err := f.service.HandleAgentAction(context.Background(), cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.push.sent) != 1 {
		t.Fatalf("expected one push, got %d", len(f.push.sent))
	}
	sent := f.push.sent[0]
	if sent.ClientName != "Dana Levi" || sent.ClientPhone != existing.ClientPhone {
		t.Errorf("expected push to identify the client, got name=%q phone=%q", sent.ClientName, sent.ClientPhone)
	}
}

func TestCancelAlreadyCancelled(t *testing.T) {
	f := newServiceFixture()

	existing := &model.Appointment{
		ID:      "b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b",
		Status:  model.StatusCancelled,
		Version: 5,
	}
	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return existing, nil
	}

	cmd := &model.AgentCommand{
		Action:        model.ActionCancel,
		AuditTier:     "tier2",
		AppointmentID: existing.ID,
	}

	result, err := f.service.HandleAgentAction(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.ResultAlreadyCancelled {
		t.Fatalf("expected already_cancelled, got %q", result.Status)
	}
	if f.appointments.updated != nil {
		t.Error("expected no write for an already cancelled appointment")
	}
	if existing.Version != 5 {
		t.Errorf("expected version untouched, got %d", existing.Version)
	}
	if len(f.push.sent) != 0 {
		t.Error("expected no push for already cancelled")
	}
}

func TestCancelNotFound(t *testing.T) {
	f := newServiceFixture()

	cmd := &model.AgentCommand{
		Action:        model.ActionCancel,
		AuditTier:     "tier2",
		AppointmentID: "b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b",
	}

	_, err := f.service.HandleAgentAction(context.Background(), cmd)
	if err == nil {
		t.Fatal("expected not found error")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeNotFound {
		t.Errorf("expected code not_found, got %q", appErr.Code)
	}
}

func TestModifyAppliesNewIntervalImmediately(t *testing.T) {
	f := newServiceFixture()

	oldStart := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	oldEnd := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	existing := &model.Appointment{
		ID:        "b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b",
		Status:    model.StatusConfirmed,
		StartTime: oldStart,
		EndTime:   oldEnd,
		Version:   2,
	}
	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return existing, nil
	}

	newStart := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	cmd := &model.AgentCommand{
		Action:          model.ActionModify,
		AuditTier:       "tier2",
		AppointmentID:   existing.ID,
		RequestedStart:  newStart,
		DurationMinutes: 90,
	}

	result, err := f.service.HandleAgentAction(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != model.ResultPendingApproval {
		t.Fatalf("expected pending, got %q", result.Status)
	}
	if result.StartTime == nil || !result.StartTime.Equal(newStart) {
		t.Errorf("expected new start %v, got %v", newStart, result.StartTime)
	}

	updated := f.appointments.updated
	if !updated.StartTime.Equal(newStart) || !updated.EndTime.Equal(newStart.Add(90*time.Minute)) {
		t.Errorf("expected interval applied immediately, got %v -> %v", updated.StartTime, updated.EndTime)
	}
	change := updated.PendingChange
	if change == nil || change.Modify == nil {
		t.Fatal("expected modify change snapshot")
	}
	if !change.Modify.PreviousStartTime.Equal(oldStart) || !change.Modify.PreviousEndTime.Equal(oldEnd) {
		t.Errorf("expected previous interval snapshot, got %+v", change.Modify)
	}

	if len(f.claims.releasedFor) != 1 || f.claims.releasedFor[0] != existing.ID {
		t.Errorf("expected old claims released, got %v", f.claims.releasedFor)
	}
	if f.claims.claimedFor != existing.ID {
		t.Errorf("expected new claims for %s, got %s", existing.ID, f.claims.claimedFor)
	}
}

func TestModifyCancelledAppointmentRejected(t *testing.T) {
	f := newServiceFixture()

	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return &model.Appointment{
			ID:     id,
			Status: model.StatusCancelled,
		}, nil
	}

	cmd := &model.AgentCommand{
		Action:          model.ActionModify,
		AuditTier:       "tier2",
		AppointmentID:   "b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b",
		RequestedStart:  time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
	}

	_, err := f.service.HandleAgentAction(context.Background(), cmd)
	if err == nil {
		t.Fatal("expected invalid state error")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeInvalidState {
		t.Errorf("expected code invalid_state, got %q", appErr.Code)
	}
}

func TestApproveBook(t *testing.T) {
	f := newServiceFixture()

	existing := pendingAppointment("b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b", 1, model.ActionBook)
	existing.ConfirmationWebhookURL = "https://agent.example.com/hooks/confirm"
	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return existing, nil
	}

	decision := &model.ApprovalDecision{
		AppointmentID:   existing.ID,
		ExpectedVersion: 1,
		Approved:        true,
		ReviewedBy:      "toney",
	}

	result, err := f.service.ResolveApproval(context.Background(), decision)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != model.ResultApprovalResolved {
		t.Errorf("expected approval_resolved, got %q", result.Status)
	}
	if result.AppointmentStatus != model.StatusConfirmed {
		t.Errorf("expected confirmed, got %q", result.AppointmentStatus)
	}
	if result.Version != 2 {
		t.Errorf("expected version 2, got %d", result.Version)
	}
	if !result.WebhookDelivered {
		t.Error("expected webhook delivered")
	}

	updated := f.appointments.updated
	if updated.PendingAction != "" || updated.PendingChange != nil {
		t.Error("expected pending fields cleared")
	}
	if updated.ApprovedAt == nil {
		t.Error("expected approved_at stamped")
	}
	if updated.ReviewedBy != "toney" {
		t.Errorf("expected reviewer recorded, got %q", updated.ReviewedBy)
	}
	if len(f.claims.releasedFor) != 0 {
		t.Error("expected claims kept for a confirmed booking")
	}
	if len(f.webhooks.posted) != 1 || f.webhooks.urls[0] != existing.ConfirmationWebhookURL {
		t.Errorf("expected one webhook post, got %v", f.webhooks.urls)
	}
}

func TestRejectBookReleasesSlots(t *testing.T) {
	f := newServiceFixture()

	existing := pendingAppointment("b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b", 1, model.ActionBook)
	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return existing, nil
	}

	result, err := f.service.ResolveApproval(context.Background(), &model.ApprovalDecision{
		AppointmentID:   existing.ID,
		ExpectedVersion: 1,
		Approved:        false,
		ReviewedBy:      "toney",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.AppointmentStatus != model.StatusRejected {
		t.Errorf("expected rejected, got %q", result.AppointmentStatus)
	}
	if len(f.claims.releasedFor) != 1 {
		t.Error("expected claims released for a rejected booking")
	}
	if result.WebhookDelivered {
		t.Error("expected no webhook without a configured URL")
	}
}

func TestApproveCancel(t *testing.T) {
	f := newServiceFixture()

	existing := pendingAppointment("b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b", 2, model.ActionCancel)
	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return existing, nil
	}

	result, err := f.service.ResolveApproval(context.Background(), &model.ApprovalDecision{
		AppointmentID:   existing.ID,
		ExpectedVersion: 2,
		Approved:        true,
		ReviewedBy:      "toney",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.AppointmentStatus != model.StatusCancelled {
		t.Errorf("expected cancelled, got %q", result.AppointmentStatus)
	}
	if f.appointments.updated.CancelledAt == nil {
		t.Error("expected cancelled_at stamped")
	}
	if len(f.claims.releasedFor) != 1 {
		t.Error("expected claims released for a cancelled appointment")
	}
}

func TestRejectCancelRestoresConfirmed(t *testing.T) {
	f := newServiceFixture()

	existing := pendingAppointment("b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b", 2, model.ActionCancel)
	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return existing, nil
	}

	result, err := f.service.ResolveApproval(context.Background(), &model.ApprovalDecision{
		AppointmentID:   existing.ID,
		ExpectedVersion: 2,
		Approved:        false,
		ReviewedBy:      "toney",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.AppointmentStatus != model.StatusConfirmed {
		t.Errorf("expected confirmed, got %q", result.AppointmentStatus)
	}
	if len(f.claims.releasedFor) != 0 {
		t.Error("expected claims kept when a cancel is rejected")
	}
}

func TestApproveStaleVersion(t *testing.T) {
	f := newServiceFixture()

	existing := pendingAppointment("b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b", 3, model.ActionBook)
	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return existing, nil
	}
	f.appointments.updateWithVersionFn = func(ctx context.Context, appointment *model.Appointment, expectedVersion int64) error {
		return appterrors.ErrVersionConflict
	}

	_, err := f.service.ResolveApproval(context.Background(), &model.ApprovalDecision{
		AppointmentID:   existing.ID,
		ExpectedVersion: 2,
		Approved:        true,
		ReviewedBy:      "toney",
	})
	if err == nil {
		t.Fatal("expected version conflict error")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeOptimisticLockConflict {
		t.Errorf("expected optimistic_lock_conflict, got %q", appErr.Code)
	}
}

func TestApproveNonPendingAppointment(t *testing.T) {
	f := newServiceFixture()

	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return &model.Appointment{
			ID:      id,
			Status:  model.StatusConfirmed,
			Version: 2,
		}, nil
	}

	_, err := f.service.ResolveApproval(context.Background(), &model.ApprovalDecision{
		AppointmentID:   "b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b",
		ExpectedVersion: 2,
		Approved:        true,
		ReviewedBy:      "toney",
	})
	if err == nil {
		t.Fatal("expected invalid state error")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeInvalidState {
		t.Errorf("expected invalid_state, got %q", appErr.Code)
	}
}

func TestApproveMissingAppointment(t *testing.T) {
	f := newServiceFixture()

	_, err := f.service.ResolveApproval(context.Background(), &model.ApprovalDecision{
		AppointmentID:   "b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b",
		ExpectedVersion: 1,
		Approved:        true,
		ReviewedBy:      "toney",
	})
	if err == nil {
		t.Fatal("expected not found error")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeNotFound {
		t.Errorf("expected not_found, got %q", appErr.Code)
	}
}

func TestApproveWebhookFailureReported(t *testing.T) {
	f := newServiceFixture()

	existing := pendingAppointment("b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b", 1, model.ActionBook)
	existing.ConfirmationWebhookURL = "https://agent.example.com/hooks/confirm"
	f.appointments.findByIDFn = func(ctx context.Context, id string) (*model.Appointment, error) {
		return existing, nil
	}
	f.webhooks.err = errors.New("connection refused")

	result, err := f.service.ResolveApproval(context.Background(), &model.ApprovalDecision{
		AppointmentID:   existing.ID,
		ExpectedVersion: 1,
		Approved:        true,
		ReviewedBy:      "toney",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != model.ResultApprovalResolved {
		t.Errorf("expected resolution despite webhook failure, got %q", result.Status)
	}
	if result.WebhookDelivered {
		t.Error("expected webhookDelivered=false after delivery failure")
	}
}

func TestPushFailureDoesNotFailBooking(t *testing.T) {
	f := newServiceFixture()
	f.push.err = errors.New("broker unavailable")

	result, err := f.service.HandleAgentAction(context.Background(), bookCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.ResultPendingApproval {
		t.Errorf("expected pending result despite push failure, got %q", result.Status)
	}
}

func TestLockContentionRetriesThenFails(t *testing.T) {
	f := newServiceFixture()
	f.locks.acquireFn = func(ctx context.Context, appointmentID string) error {
		return appterrors.ErrLockHeld
	}

	_, err := f.service.HandleAgentAction(context.Background(), &model.AgentCommand{
		Action:        model.ActionCancel,
		AuditTier:     "tier2",
		AppointmentID: "b5d0a9ce-3f1a-4a0e-9f51-1c2d3e4f5a6b",
	})
	if err == nil {
		t.Fatal("expected lock contention error")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeInvalidState {
		t.Errorf("expected invalid_state on held lock, got %q", appErr.Code)
	}
}
