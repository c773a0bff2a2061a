package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/melbournemould/leadboard/internal/models"
)

// LeadRepository defines the interface for lead data persistence operations
type LeadRepository interface {
	// GetAllLeads returns every lead, newest first
	GetAllLeads(ctx context.Context) ([]models.Lead, error)

	// GetRecentLeads returns the most recent leads ordered by created_at
	GetRecentLeads(ctx context.Context, limit int) ([]models.Lead, error)

	// GetLeadByID retrieves a lead by its ID
	GetLeadByID(ctx context.Context, id string) (*models.Lead, error)

	// CreateLead inserts a new lead, assigning an ID when none is set
	CreateLead(ctx context.Context, lead *models.Lead) error

	// UpdateLead applies a partial update. When the status changes, the
	// matching stage timestamp is stamped and a history row is written in
	// the same transaction; the change is returned, nil otherwise.
	UpdateLead(ctx context.Context, id string, update models.LeadUpdate) (*models.Lead, *models.StatusChange, error)

	// AssignTechnician assigns every lead in leadIDs in one transaction and
	// returns how many leads were updated
	AssignTechnician(ctx context.Context, leadIDs []string, technicianID string) (int64, error)

	// ListTechnicians returns all technicians ordered by name
	ListTechnicians(ctx context.Context) ([]models.Technician, error)

	// GetLeadCountsByStatus returns counts of leads grouped by status
	GetLeadCountsByStatus(ctx context.Context) (map[string]int, error)

	// GetStatusHistory returns the status changes of a lead, oldest first
	GetStatusHistory(ctx context.Context, leadID string) ([]models.StatusChange, error)

	// GetStatusChange retrieves a single status change by its ID
	GetStatusChange(ctx context.Context, id int64) (*models.StatusChange, error)
}

// leadRepository is the concrete implementation of LeadRepository
type leadRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewLeadRepository creates a new LeadRepository instance
func NewLeadRepository(db *sql.DB) LeadRepository {
	return &leadRepository{
		db:  db,
		now: time.Now,
	}
}

const leadColumns = `
	l.id, l.first_name, l.last_name, l.email, l.phone, l.suburb,
	l.address, l.postcode, l.service_type, l.urgency, l.source, l.status,
	l.notes, l.estimated_value, l.booking_dates, l.assigned_to_id,
	l.created_at, l.updated_at, l.contacted_at, l.qualified_at, l.converted_at,
	t.name`

const leadFrom = `
	FROM leads l
	LEFT JOIN technicians t ON t.id = l.assigned_to_id`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	lead := &models.Lead{}
	var technicianName sql.NullString

	err := row.Scan(
		&lead.ID,
		&lead.FirstName,
		&lead.LastName,
		&lead.Email,
		&lead.Phone,
		&lead.Suburb,
		&lead.Address,
		&lead.Postcode,
		&lead.ServiceType,
		&lead.Urgency,
		&lead.Source,
		&lead.Status,
		&lead.Notes,
		&lead.EstimatedValue,
		&lead.BookingDates,
		&lead.AssignedToID,
		&lead.CreatedAt,
		&lead.UpdatedAt,
		&lead.ContactedAt,
		&lead.QualifiedAt,
		&lead.ConvertedAt,
		&technicianName,
	)
	if err != nil {
		return nil, err
	}

	if lead.AssignedToID != nil && technicianName.Valid {
		lead.AssignedTo = &models.Technician{ID: *lead.AssignedToID, Name: technicianName.String}
	}
	return lead, nil
}

func (r *leadRepository) queryLeads(ctx context.Context, op, query string, args ...interface{}) ([]models.Lead, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", op, err)
	}
	defer rows.Close()

	leads := make([]models.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, *lead)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return leads, nil
}

// GetAllLeads returns every lead, newest first
func (r *leadRepository) GetAllLeads(ctx context.Context) ([]models.Lead, error) {
	query := `SELECT` + leadColumns + leadFrom + `
		ORDER BY l.created_at DESC, l.id`
	return r.queryLeads(ctx, "leads", query)
}

// GetRecentLeads returns the most recent leads ordered by created_at
func (r *leadRepository) GetRecentLeads(ctx context.Context, limit int) ([]models.Lead, error) {
	query := `SELECT` + leadColumns + leadFrom + `
		ORDER BY l.created_at DESC, l.id
		LIMIT $1`
	return r.queryLeads(ctx, "recent leads", query, limit)
}

// GetLeadByID retrieves a lead by its ID
func (r *leadRepository) GetLeadByID(ctx context.Context, id string) (*models.Lead, error) {
	return getLead(ctx, r.db, id)
}

// queryRower is satisfied by *sql.DB and *sql.Tx
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getLead(ctx context.Context, q queryRower, id string) (*models.Lead, error) {
	query := `SELECT` + leadColumns + leadFrom + `
		WHERE l.id = $1`

	lead, err := scanLead(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewStoreError(models.ErrorKindNotFound, "get_lead", id, "lead not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return lead, nil
}

// CreateLead inserts a new lead, assigning an ID when none is set
func (r *leadRepository) CreateLead(ctx context.Context, lead *models.Lead) error {
	query := `
		INSERT INTO leads (
			id, first_name, last_name, email, phone, suburb,
			address, postcode, service_type, urgency, source, status,
			notes, estimated_value, booking_dates, assigned_to_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	now := r.now()
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	if lead.UpdatedAt.IsZero() {
		lead.UpdatedAt = now
	}
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		lead.ID,
		lead.FirstName,
		lead.LastName,
		lead.Email,
		lead.Phone,
		lead.Suburb,
		lead.Address,
		lead.Postcode,
		string(lead.ServiceType),
		string(lead.Urgency),
		string(lead.Source),
		string(lead.Status),
		lead.Notes,
		lead.EstimatedValue,
		lead.BookingDates,
		lead.AssignedToID,
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		return classifyWriteError("create_lead", lead.ID, err)
	}

	return nil
}

// assignment is one "column = $n" pair of an UPDATE
type assignment struct {
	column string
	value  interface{}
}

func updateAssignments(update models.LeadUpdate) []assignment {
	var set []assignment
	add := func(column string, value interface{}) {
		set = append(set, assignment{column: column, value: value})
	}

	if update.FirstName != nil {
		add("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		add("last_name", *update.LastName)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.Phone != nil {
		add("phone", *update.Phone)
	}
	if update.Suburb != nil {
		add("suburb", *update.Suburb)
	}
	if update.Address != nil {
		add("address", *update.Address)
	}
	if update.Postcode != nil {
		add("postcode", *update.Postcode)
	}
	if update.ServiceType != nil {
		add("service_type", string(*update.ServiceType))
	}
	if update.Urgency != nil {
		add("urgency", string(*update.Urgency))
	}
	if update.Source != nil {
		add("source", string(*update.Source))
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Notes != nil {
		add("notes", *update.Notes)
	}
	if update.EstimatedValue != nil {
		add("estimated_value", *update.EstimatedValue)
	}
	if update.BookingDates != nil {
		add("booking_dates", *update.BookingDates)
	}
	if update.AssignedToID != nil {
		// An empty id clears the assignment
		if *update.AssignedToID == "" {
			add("assigned_to_id", nil)
		} else {
			add("assigned_to_id", *update.AssignedToID)
		}
	}
	return set
}

// stageTimestampColumn is stamped the first time a lead enters the stage
func stageTimestampColumn(status models.LeadStatus) string {
	switch status {
	case models.LeadStatusContacted:
		return "contacted_at"
	case models.LeadStatusQualified:
		return "qualified_at"
	case models.LeadStatusConverted:
		return "converted_at"
	}
	return ""
}

// UpdateLead applies a partial update within a transaction
func (r *leadRepository) UpdateLead(ctx context.Context, id string, update models.LeadUpdate) (lead *models.Lead, change *models.StatusChange, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM leads WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, models.NewStoreError(models.ErrorKindNotFound, "update_lead", id, "lead not found", nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock lead: %w", err)
	}

	now := r.now()
	set := updateAssignments(update)
	statusChanged := update.Status != nil && string(*update.Status) != current

	if len(set) > 0 {
		clauses := make([]string, 0, len(set)+2)
		args := make([]interface{}, 0, len(set)+3)
		for _, a := range set {
			args = append(args, a.value)
			clauses = append(clauses, fmt.Sprintf("%s = $%d", a.column, len(args)))
		}

		args = append(args, now)
		clauses = append(clauses, fmt.Sprintf("updated_at = $%d", len(args)))
		if statusChanged {
			if column := stageTimestampColumn(*update.Status); column != "" {
				clauses = append(clauses, fmt.Sprintf("%s = COALESCE(%s, $%d)", column, column, len(args)))
			}
		}

		args = append(args, id)
		query := fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d", strings.Join(clauses, ", "), len(args))

		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return nil, nil, classifyWriteError("update_lead", id, err)
		}
	}

	if statusChanged {
		oldStatus := models.LeadStatus(current)
		change = &models.StatusChange{
			LeadID:    id,
			OldStatus: &oldStatus,
			NewStatus: *update.Status,
			ChangedAt: now,
		}
		historyQuery := `
			INSERT INTO lead_status_history (lead_id, old_status, new_status, changed_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`
		err = tx.QueryRowContext(ctx, historyQuery, id, current, string(change.NewStatus), now).Scan(&change.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to record status change: %w", err)
		}
	}

	lead, err = getLead(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return lead, change, nil
}

// AssignTechnician assigns every lead in leadIDs in one transaction
func (r *leadRepository) AssignTechnician(ctx context.Context, leadIDs []string, technicianID string) (n int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM technicians WHERE id = $1)`, technicianID).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to look up technician: %w", err)
	}
	if !exists {
		return 0, models.NewStoreError(models.ErrorKindNotFound, "assign_technician", "", "technician not found: "+technicianID, nil)
	}

	query := `
		UPDATE leads
		SET assigned_to_id = $1, updated_at = $2
		WHERE id = ANY($3)
	`
	result, err := tx.ExecContext(ctx, query, technicianID, r.now(), pq.Array(leadIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to assign technician: %w", err)
	}

	n, err = result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return n, nil
}

// ListTechnicians returns all technicians ordered by name
func (r *leadRepository) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM technicians ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query technicians: %w", err)
	}
	defer rows.Close()

	technicians := make([]models.Technician, 0)
	for rows.Next() {
		var technician models.Technician
		if err := rows.Scan(&technician.ID, &technician.Name); err != nil {
			return nil, fmt.Errorf("failed to scan technician: %w", err)
		}
		technicians = append(technicians, technician)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return technicians, nil
}

// GetLeadCountsByStatus returns counts of leads grouped by status
func (r *leadRepository) GetLeadCountsByStatus(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*) as count
		FROM leads
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}

const statusChangeColumns = `id, lead_id, old_status, new_status, changed_at`

func scanStatusChange(row rowScanner) (*models.StatusChange, error) {
	change := &models.StatusChange{}
	var oldStatus sql.NullString
	if err := row.Scan(&change.ID, &change.LeadID, &oldStatus, &change.NewStatus, &change.ChangedAt); err != nil {
		return nil, err
	}
	if oldStatus.Valid {
		status := models.LeadStatus(oldStatus.String)
		change.OldStatus = &status
	}
	return change, nil
}

// GetStatusHistory returns the status changes of a lead, oldest first
func (r *leadRepository) GetStatusHistory(ctx context.Context, leadID string) ([]models.StatusChange, error) {
	query := `SELECT ` + statusChangeColumns + `
		FROM lead_status_history
		WHERE lead_id = $1
		ORDER BY changed_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	history := make([]models.StatusChange, 0)
	for rows.Next() {
		change, err := scanStatusChange(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status change: %w", err)
		}
		history = append(history, *change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return history, nil
}

// GetStatusChange retrieves a single status change by its ID
func (r *leadRepository) GetStatusChange(ctx context.Context, id int64) (*models.StatusChange, error) {
	query := `SELECT ` + statusChangeColumns + `
		FROM lead_status_history
		WHERE id = $1`

	change, err := scanStatusChange(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewStoreError(models.ErrorKindNotFound, "get_status_change", "", fmt.Sprintf("status change not found: %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status change: %w", err)
	}
	return change, nil
}

// PostgreSQL error codes the repository maps to validation errors
const (
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
	pqNotNullViolation    = "23502"
)

// classifyWriteError turns constraint violations into validation errors
func classifyWriteError(op, leadID string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation:
			cause := models.NewValidationError("assignedToId", "unknown technician", pqErr.Detail)
			return models.NewStoreError(models.ErrorKindValidation, op, leadID, "referenced record does not exist", cause)
		case pqCheckViolation, pqNotNullViolation:
			cause := models.NewValidationError(pqErr.Column, pqErr.Message, pqErr.Detail)
			return models.NewStoreError(models.ErrorKindValidation, op, leadID, "constraint violation", cause)
		}
	}
	return fmt.Errorf("failed to %s: %w", strings.ReplaceAll(op, "_", " "), err)
}
