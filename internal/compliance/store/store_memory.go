package store

import (
	"context"
	"sort"
	"sync"

	"realhub/internal/authz"
	"realhub/internal/compliance/models"
	propertymodels "realhub/internal/property/models"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

// PropertyVisibility resolves whether a record's property is publicly
// visible, for PublicOnly scopes. The property store satisfies it.
type PropertyVisibility interface {
	FindByID(ctx context.Context, propertyID id.PropertyID) (*propertymodels.Property, error)
}

type RequirementsMemory struct {
	mu           sync.RWMutex
	requirements map[id.RequirementID]*models.Requirement
}

func NewRequirementsMemory() *RequirementsMemory {
	return &RequirementsMemory{requirements: make(map[id.RequirementID]*models.Requirement)}
}

func (s *RequirementsMemory) Create(_ context.Context, requirement *models.Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requirements[requirement.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *requirement
	s.requirements[requirement.ID] = &clone
	return nil
}

func (s *RequirementsMemory) FindByID(_ context.Context, requirementID id.RequirementID) (*models.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	requirement, ok := s.requirements[requirementID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *requirement
	return &clone, nil
}

func (s *RequirementsMemory) Update(_ context.Context, requirement *models.Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.requirements[requirement.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != requirement.Version {
		return sentinel.ErrStaleState
	}
	clone := *requirement
	clone.Version++
	s.requirements[requirement.ID] = &clone
	requirement.Version = clone.Version
	return nil
}

func (s *RequirementsMemory) List(_ context.Context, filter RequirementFilter) ([]*models.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Requirement
	for _, r := range s.requirements {
		if filter.ActiveOnly && !r.Active {
			continue
		}
		clone := *r
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type RecordsMemory struct {
	mu         sync.RWMutex
	records    map[id.ComplianceID]*models.Record
	byProperty map[id.PropertyID]id.ComplianceID
	checks     map[id.CheckID]*models.Check
	properties PropertyVisibility
}

func NewRecordsMemory(properties PropertyVisibility) *RecordsMemory {
	return &RecordsMemory{
		records:    make(map[id.ComplianceID]*models.Record),
		byProperty: make(map[id.PropertyID]id.ComplianceID),
		checks:     make(map[id.CheckID]*models.Check),
		properties: properties,
	}
}

func cloneRecord(r *models.Record) *models.Record {
	c := *r
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		c.ReviewedAt = &t
	}
	if r.LastInspectionDate != nil {
		t := *r.LastInspectionDate
		c.LastInspectionDate = &t
	}
	if r.NextInspectionDate != nil {
		t := *r.NextInspectionDate
		c.NextInspectionDate = &t
	}
	return &c
}

func cloneCheck(c *models.Check) *models.Check {
	out := *c
	if c.CheckedAt != nil {
		t := *c.CheckedAt
		out.CheckedAt = &t
	}
	return &out
}

func (s *RecordsMemory) recordInScope(ctx context.Context, r *models.Record, scope authz.Scope) bool {
	if scope.All {
		return true
	}
	if !scope.UserID.IsNil() && r.OwnerID == scope.UserID {
		return true
	}
	if scope.PublicOnly {
		property, err := s.properties.FindByID(ctx, r.PropertyID)
		return err == nil && property.IsPubliclyVisible()
	}
	return false
}

func (s *RecordsMemory) Create(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byProperty[record.PropertyID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = cloneRecord(record)
	s.byProperty[record.PropertyID] = record.ID
	return nil
}

func (s *RecordsMemory) FindByID(_ context.Context, complianceID id.ComplianceID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[complianceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *RecordsMemory) FindByProperty(_ context.Context, propertyID id.PropertyID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	complianceID, ok := s.byProperty[propertyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(s.records[complianceID]), nil
}

func (s *RecordsMemory) Update(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != record.Version {
		return sentinel.ErrStaleState
	}
	next := cloneRecord(record)
	next.Version++
	s.records[record.ID] = next
	record.Version = next.Version
	return nil
}

func (s *RecordsMemory) List(ctx context.Context, scope authz.Scope, filter RecordFilter) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, r := range s.records {
		if !s.recordInScope(ctx, r, scope) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if !filter.OwnerID.IsNil() && r.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *RecordsMemory) DeleteByProperty(_ context.Context, propertyID id.PropertyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	complianceID, ok := s.byProperty[propertyID]
	if !ok {
		return nil
	}
	for checkID, check := range s.checks {
		if check.ComplianceID == complianceID {
			delete(s.checks, checkID)
		}
	}
	delete(s.records, complianceID)
	delete(s.byProperty, propertyID)
	return nil
}

func (s *RecordsMemory) CreateCheck(_ context.Context, check *models.Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[check.ComplianceID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.checks {
		if existing.ComplianceID == check.ComplianceID && existing.RequirementID == check.RequirementID {
			return sentinel.ErrConflict
		}
	}
	if _, exists := s.checks[check.ID]; exists {
		return sentinel.ErrConflict
	}
	s.checks[check.ID] = cloneCheck(check)
	return nil
}

func (s *RecordsMemory) FindCheck(_ context.Context, checkID id.CheckID) (*models.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	check, ok := s.checks[checkID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCheck(check), nil
}

func (s *RecordsMemory) UpdateCheck(_ context.Context, check *models.Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.checks[check.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != check.Version {
		return sentinel.ErrStaleState
	}
	next := cloneCheck(check)
	next.Version++
	s.checks[check.ID] = next
	check.Version = next.Version
	return nil
}

func (s *RecordsMemory) ListChecks(ctx context.Context, scope authz.Scope, filter CheckFilter) ([]*models.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Check
	for _, c := range s.checks {
		record, ok := s.records[c.ComplianceID]
		if !ok || !s.recordInScope(ctx, record, scope) {
			continue
		}
		if !filter.ComplianceID.IsNil() && c.ComplianceID != filter.ComplianceID {
			continue
		}
		if !filter.RequirementID.IsNil() && c.RequirementID != filter.RequirementID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, cloneCheck(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type ReportsMemory struct {
	mu      sync.RWMutex
	reports map[id.ReportID]*models.Report
}

func NewReportsMemory() *ReportsMemory {
	return &ReportsMemory{reports: make(map[id.ReportID]*models.Report)}
}

func (s *ReportsMemory) Create(_ context.Context, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[report.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *report
	s.reports[report.ID] = &clone
	return nil
}

func (s *ReportsMemory) FindByID(_ context.Context, reportID id.ReportID) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[reportID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *report
	return &clone, nil
}

func (s *ReportsMemory) Update(_ context.Context, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.reports[report.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != report.Version {
		return sentinel.ErrStaleState
	}
	clone := *report
	clone.Version++
	s.reports[report.ID] = &clone
	report.Version = clone.Version
	return nil
}

func (s *ReportsMemory) List(_ context.Context, filter ReportFilter) ([]*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Report
	for _, r := range s.reports {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		clone := *r
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
