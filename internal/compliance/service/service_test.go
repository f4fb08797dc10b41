package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realhub/internal/authz"
	"realhub/internal/compliance/models"
	"realhub/internal/compliance/store"
	"realhub/internal/events"
	"realhub/internal/identity"
	propertymodels "realhub/internal/property/models"
	propertystore "realhub/internal/property/store"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

type fixture struct {
	svc        *Service
	properties *propertystore.InMemory
	sink       *events.MemorySink

	owner      identity.Actor
	inspector  identity.Actor
	bystander  identity.Actor
	propertyID id.PropertyID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		properties: propertystore.NewInMemory(),
		sink:       events.NewMemorySink(),
		owner:      identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RolePropertyOwner, Verified: true},
		inspector:  identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleGovernment, Verified: true},
		bystander:  identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter, Verified: true},
	}
	authzEngine := authz.NewEngine()
	f.svc = New(
		store.NewRequirementsMemory(),
		store.NewRecordsMemory(f.properties),
		store.NewReportsMemory(),
		f.properties,
		authzEngine,
		statemachine.NewEngine(authzEngine, statemachine.NewInProcessLocker()),
		f.sink,
		nil,
	)

	property, err := propertymodels.NewProperty(
		id.PropertyID(uuid.New()), f.owner.ID, "Warehouse unit",
		decimal.NewFromInt(90000), propertymodels.TypeCommercial, propertymodels.ListingForSale,
		time.Now().UTC(),
	)
	require.NoError(t, err)
	require.NoError(t, f.properties.Create(context.Background(), property))
	f.propertyID = property.ID
	return f
}

func (f *fixture) requirement(t *testing.T, title string) *models.Requirement {
	t.Helper()
	requirement, err := f.svc.CreateRequirement(context.Background(), f.inspector, title, "")
	require.NoError(t, err)
	return requirement
}

func (f *fixture) record(t *testing.T) *models.Record {
	t.Helper()
	record, err := f.svc.EnsureRecord(context.Background(), f.owner, f.propertyID)
	require.NoError(t, err)
	return record
}

func TestRequirements(t *testing.T) {
	ctx := context.Background()

	t.Run("only compliance managers create requirements", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateRequirement(ctx, f.owner, "Fire safety certificate", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

		requirement, err := f.svc.CreateRequirement(ctx, f.inspector, "Fire safety certificate", "annual inspection")
		require.NoError(t, err)
		assert.True(t, requirement.Active)
		assert.Equal(t, f.inspector.ID, requirement.CreatedBy)
		assert.Len(t, f.sink.Named("compliance.requirement_created"), 1)
	})

	t.Run("retired requirements are hidden from regular actors", func(t *testing.T) {
		f := newFixture(t)
		active := f.requirement(t, "Structural survey")
		retired := f.requirement(t, "Lead paint disclosure")
		inactive := false
		_, err := f.svc.UpdateRequirement(ctx, f.inspector, retired.ID, UpdateRequirementInput{Active: &inactive})
		require.NoError(t, err)

		visible, err := f.svc.ListRequirements(ctx, f.owner)
		require.NoError(t, err)
		require.Len(t, visible, 1)
		assert.Equal(t, active.ID, visible[0].ID)

		all, err := f.svc.ListRequirements(ctx, f.inspector)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("empty title rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateRequirement(ctx, f.inspector, "", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestEnsureRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("first access by the owner creates the record", func(t *testing.T) {
		f := newFixture(t)
		record := f.record(t)
		assert.Equal(t, f.propertyID, record.PropertyID)
		assert.Equal(t, f.owner.ID, record.OwnerID)
		assert.Equal(t, models.StatusPendingReview, record.Status)

		// Second access returns the same record, not a new one.
		again, err := f.svc.EnsureRecord(ctx, f.owner, f.propertyID)
		require.NoError(t, err)
		assert.Equal(t, record.ID, again.ID)
	})

	t.Run("bystander cannot create a record for someone else's property", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.EnsureRecord(ctx, f.bystander, f.propertyID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("inspector may create the record", func(t *testing.T) {
		f := newFixture(t)
		record, err := f.svc.EnsureRecord(ctx, f.inspector, f.propertyID)
		require.NoError(t, err)
		assert.Equal(t, f.owner.ID, record.OwnerID)
	})

	t.Run("unknown property maps to not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.EnsureRecord(ctx, f.owner, id.PropertyID(uuid.New()))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestRecordVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.record(t)

	t.Run("hidden while the property is not public", func(t *testing.T) {
		_, err := f.svc.GetRecord(ctx, f.bystander, record.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("visible to anyone once the property is public", func(t *testing.T) {
		property, err := f.properties.FindByID(ctx, f.propertyID)
		require.NoError(t, err)
		property.ApplyVerification(f.inspector.ID, time.Now().UTC())
		require.NoError(t, f.properties.Update(ctx, property))

		got, err := f.svc.GetRecord(ctx, f.bystander, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.ID, got.ID)
	})
}

func TestChecksAndDerivedStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.record(t)
	fire := f.requirement(t, "Fire safety certificate")
	wiring := f.requirement(t, "Electrical wiring report")

	check1, err := f.svc.AddCheck(ctx, f.inspector, record.ID, fire.ID)
	require.NoError(t, err)
	check2, err := f.svc.AddCheck(ctx, f.inspector, record.ID, wiring.ID)
	require.NoError(t, err)

	t.Run("duplicate requirement on a record conflicts", func(t *testing.T) {
		_, err := f.svc.AddCheck(ctx, f.inspector, record.ID, fire.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("retired requirement cannot be attached", func(t *testing.T) {
		retired := f.requirement(t, "Old rule")
		inactive := false
		_, err := f.svc.UpdateRequirement(ctx, f.inspector, retired.ID, UpdateRequirementInput{Active: &inactive})
		require.NoError(t, err)

		_, err = f.svc.AddCheck(ctx, f.inspector, record.ID, retired.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("pending checks keep the record in pending review", func(t *testing.T) {
		got, err := f.svc.GetRecord(ctx, f.owner, record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPendingReview, got.Status)
	})

	t.Run("one passed check is not enough", func(t *testing.T) {
		_, err := f.svc.RecordCheckResult(ctx, f.inspector, check1.ID, statemachine.CheckPassed, "certificate on file")
		require.NoError(t, err)

		got, err := f.svc.GetRecord(ctx, f.owner, record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPendingReview, got.Status)
	})

	t.Run("all checks passed makes the record compliant", func(t *testing.T) {
		_, err := f.svc.RecordCheckResult(ctx, f.inspector, check2.ID, statemachine.CheckPassed, "")
		require.NoError(t, err)

		got, err := f.svc.GetRecord(ctx, f.owner, record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompliant, got.Status)
	})

	t.Run("a single failure makes the record non-compliant", func(t *testing.T) {
		check1, err := f.svc.ListChecks(ctx, f.inspector, store.CheckFilter{RequirementID: fire.ID})
		require.NoError(t, err)
		require.Len(t, check1, 1)

		_, err = f.svc.RecordCheckResult(ctx, f.inspector, check1[0].ID, statemachine.CheckFailed, "expired certificate")
		require.NoError(t, err)

		got, err := f.svc.GetRecord(ctx, f.owner, record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusNonCompliant, got.Status)

		flagged, err := f.svc.NonCompliant(ctx, f.inspector)
		require.NoError(t, err)
		require.Len(t, flagged, 1)
		assert.Equal(t, record.ID, flagged[0].ID)
	})

	t.Run("owner cannot record check results", func(t *testing.T) {
		checks, err := f.svc.ListChecks(ctx, f.inspector, store.CheckFilter{ComplianceID: record.ID})
		require.NoError(t, err)
		require.NotEmpty(t, checks)

		_, err = f.svc.RecordCheckResult(ctx, f.owner, checks[0].ID, statemachine.CheckPassed, "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("check cannot repeat its current status", func(t *testing.T) {
		checks, err := f.svc.ListChecks(ctx, f.inspector, store.CheckFilter{RequirementID: wiring.ID})
		require.NoError(t, err)
		require.Len(t, checks, 1)
		require.Equal(t, statemachine.CheckPassed, checks[0].Status)

		_, err = f.svc.RecordCheckResult(ctx, f.inspector, checks[0].ID, statemachine.CheckPassed, "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.record(t)

	t.Run("owner cannot review", func(t *testing.T) {
		_, err := f.svc.Review(ctx, f.owner, record.ID, ReviewInput{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("inspector review stamps reviewer and dates", func(t *testing.T) {
		last := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		next := last.AddDate(1, 0, 0)
		notes := "passed walkthrough"
		reviewed, err := f.svc.Review(ctx, f.inspector, record.ID, ReviewInput{
			Notes:              &notes,
			LastInspectionDate: &last,
			NextInspectionDate: &next,
		})
		require.NoError(t, err)
		assert.Equal(t, f.inspector.ID, reviewed.ReviewedBy)
		require.NotNil(t, reviewed.ReviewedAt)
		assert.Equal(t, "passed walkthrough", reviewed.Notes)
		assert.Len(t, f.sink.Named("compliance.reviewed"), 1)
	})
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	report, err := f.svc.GenerateReport(ctx, f.inspector, "Q1 compliance summary", "quarterly")
	require.NoError(t, err)
	assert.Equal(t, models.ReportDraft, report.Status)

	t.Run("drafts are invisible to regular actors", func(t *testing.T) {
		_, err := f.svc.GetReport(ctx, f.bystander, report.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		listed, err := f.svc.ListReports(ctx, f.bystander, store.ReportFilter{})
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("finalized reports become readable", func(t *testing.T) {
		final, err := f.svc.FinalizeReport(ctx, f.inspector, report.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReportFinal, final.Status)

		got, err := f.svc.GetReport(ctx, f.bystander, report.ID)
		require.NoError(t, err)
		assert.Equal(t, report.ID, got.ID)

		listed, err := f.svc.ListReports(ctx, f.bystander, store.ReportFilter{})
		require.NoError(t, err)
		assert.Len(t, listed, 1)
	})

	t.Run("finalizing twice is an invalid transition", func(t *testing.T) {
		_, err := f.svc.FinalizeReport(ctx, f.inspector, report.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("regular actors cannot generate reports", func(t *testing.T) {
		_, err := f.svc.GenerateReport(ctx, f.owner, "My report", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func TestPropertyDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.record(t)
	requirement := f.requirement(t, "Fire safety certificate")
	_, err := f.svc.AddCheck(ctx, f.inspector, record.ID, requirement.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.PropertyDeleted(ctx, f.propertyID))

	_, err = f.svc.GetRecord(ctx, f.inspector, record.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	checks, err := f.svc.ListChecks(ctx, f.inspector, store.CheckFilter{ComplianceID: record.ID})
	require.NoError(t, err)
	assert.Empty(t, checks)
}
